package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sprocket/internal/config"
)

const userAgent = "Sprocket-Go/0.1.0"

// Service defines the notification surface exposed to the dispatcher and the
// pipeline executor.
type Service interface {
	NotifyJobStarted(ctx context.Context, jobID, sourceKey string) error
	NotifyJobCompleted(ctx context.Context, jobID string, boundaries int, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, jobID, stage, message string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
		cfg:      cfg,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Notifications
}

func (n *ntfyService) NotifyJobStarted(ctx context.Context, jobID, sourceKey string) error {
	if !n.cfg.JobStarted {
		return nil
	}
	data := payload{
		title:   "Sprocket - Job Started",
		message: fmt.Sprintf("Started processing %s (%s)", strings.TrimSpace(jobID), strings.TrimSpace(sourceKey)),
		tags:    []string{"sprocket", "job", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID string, boundaries int, duration time.Duration) error {
	if !n.cfg.JobCompleted {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:    "Sprocket - Job Complete",
		message:  fmt.Sprintf("Completed %s: %d segments in %s", strings.TrimSpace(jobID), boundaries, duration),
		tags:     []string{"sprocket", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID, stage, message string) error {
	if !n.cfg.JobFailed {
		return nil
	}
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}
	data := payload{
		title:    "Sprocket - Job Failed",
		message:  fmt.Sprintf("Job %s failed in %s: %s", strings.TrimSpace(jobID), stage, strings.TrimSpace(message)),
		tags:     []string{"sprocket", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.cfg.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Sprocket - Error",
		message:  builder.String(),
		tags:     []string{"sprocket", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Sprocket - Test",
		message:  "Notification system test",
		tags:     []string{"sprocket", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobStarted(context.Context, string, string) error               { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, int, time.Duration) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error        { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
