package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sprocket/internal/config"
	"sprocket/internal/logging"
	"sprocket/internal/services"
	"sprocket/internal/stage"
)

const defaultPublishTimeout = 30 * time.Second

// Result is the persisted output document for one completed job.
type Result struct {
	JobID       string                    `json:"job_id"`
	SourceKey   string                    `json:"source_key"`
	Duration    float64                   `json:"duration,omitempty"`
	CompletedAt time.Time                 `json:"completed_at"`
	Boundaries  []stage.Boundary          `json:"boundaries"`
	Transcript  []stage.TranscriptSegment `json:"transcript,omitempty"`
	Speakers    []stage.SpeakerTurn       `json:"speakers,omitempty"`
	Keyframes   []stage.Keyframe          `json:"keyframes,omitempty"`
	Summaries   []stage.Summary           `json:"summaries,omitempty"`
}

// Sink writes the finished pipeline output to the results directory and
// registers it with the search index service. It runs strictly after the job
// record is completed; its failures are reported, never propagated back into
// job state.
type Sink struct {
	resultsDir string
	indexURL   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes the sink.
type Option func(*Sink)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sink) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithClock overrides the completion timestamp source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a sink writing to resultsDir and indexing via cfg.
func New(resultsDir string, cfg config.Publish, logger *slog.Logger, opts ...Option) (*Sink, error) {
	resultsDir = strings.TrimSpace(resultsDir)
	if resultsDir == "" {
		return nil, errors.New("results directory required")
	}
	timeout := defaultPublishTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	s := &Sink{
		resultsDir: resultsDir,
		indexURL:   strings.TrimSpace(cfg.IndexURL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "sink"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish writes the result document and registers it with the index. The
// file write happens first so a failed index insertion still leaves a
// recoverable artifact on disk.
func (s *Sink) Publish(ctx context.Context, pc *stage.Context) error {
	if pc == nil {
		return services.Wrap(services.ErrPublication, "", "publish", "nil pipeline context", nil)
	}
	result := Result{
		JobID:       pc.JobID,
		SourceKey:   pc.SourceKey,
		Duration:    pc.Duration,
		CompletedAt: s.now().UTC(),
		Boundaries:  pc.Boundaries,
		Transcript:  pc.Transcript,
		Speakers:    pc.SpeakerTurns,
		Keyframes:   pc.Keyframes,
		Summaries:   pc.Summaries,
	}

	path, err := s.writeResult(result)
	if err != nil {
		return services.Wrap(services.ErrPublication, "", "write result", "", err)
	}
	s.logger.Info(
		"result written",
		logging.String(logging.FieldJobID, pc.JobID),
		logging.String("path", path),
	)

	if err := s.indexInsert(ctx, result); err != nil {
		return services.Wrap(services.ErrPublication, "", "index insert", "", err)
	}
	return nil
}

// ResultPath returns where the result document for a job is written.
func (s *Sink) ResultPath(jobID string) string {
	return filepath.Join(s.resultsDir, jobID+".json")
}

// writeResult persists the document atomically: temp file in the same
// directory, fsync, rename.
func (s *Sink) writeResult(result Result) (string, error) {
	if err := os.MkdirAll(s.resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	target := s.ResultPath(result.JobID)
	tmp, err := os.CreateTemp(s.resultsDir, "."+result.JobID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp result: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write result: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close result: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("rename result: %w", err)
	}
	return target, nil
}

type indexDocument struct {
	JobID       string          `json:"job_id"`
	SourceKey   string          `json:"source_key"`
	CompletedAt time.Time       `json:"completed_at"`
	Boundaries  int             `json:"boundaries"`
	Summaries   []stage.Summary `json:"summaries,omitempty"`
}

// indexInsert registers the result with the search index. An unconfigured
// index URL means file output only, which is a valid deployment.
func (s *Sink) indexInsert(ctx context.Context, result Result) error {
	if s.indexURL == "" {
		s.logger.Debug("index url not configured, skipping insert",
			logging.String(logging.FieldJobID, result.JobID))
		return nil
	}
	doc := indexDocument{
		JobID:       result.JobID,
		SourceKey:   result.SourceKey,
		CompletedAt: result.CompletedAt,
		Boundaries:  len(result.Boundaries),
		Summaries:   result.Summaries,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.indexURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("index request: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
