package stages

import (
	"context"
	"fmt"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
)

// Summary calls the summarization service, which produces one structured
// summary per content boundary from the transcript and boundary spans.
type Summary struct {
	client *serviceClient
}

// NewSummary constructs the summary stage from its service config.
func NewSummary(cfg config.StageService, opts ...Option) *Summary {
	return &Summary{client: newServiceClient(pipeline.StageSummary, cfg, opts...)}
}

// Name implements stage.Stage.
func (s *Summary) Name() string { return pipeline.StageSummary }

type summaryRequest struct {
	JobID      string                    `json:"job_id"`
	SourceKey  string                    `json:"source_key"`
	Boundaries []stage.Boundary          `json:"boundaries"`
	Transcript []stage.TranscriptSegment `json:"transcript,omitempty"`
}

type summaryResponse struct {
	Summaries []stage.Summary `json:"summaries"`
}

// Execute implements stage.Stage.
func (s *Summary) Execute(ctx context.Context, pc *stage.Context) error {
	var resp summaryResponse
	if err := s.client.postJSON(ctx, "/v1/summarize", summaryRequest{
		JobID:      pc.JobID,
		SourceKey:  pc.SourceKey,
		Boundaries: pc.Boundaries,
		Transcript: pc.Transcript,
	}, &resp); err != nil {
		return err
	}
	if len(resp.Summaries) != len(pc.Boundaries) {
		return fmt.Errorf("summary: expected %d summaries, got %d", len(pc.Boundaries), len(resp.Summaries))
	}
	for i, summary := range resp.Summaries {
		if summary.BoundaryIndex < 0 || summary.BoundaryIndex >= len(pc.Boundaries) {
			return fmt.Errorf("summary: entry %d references unknown boundary %d", i, summary.BoundaryIndex)
		}
	}
	pc.Summaries = resp.Summaries
	return nil
}

// HealthCheck implements stage.Stage.
func (s *Summary) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.healthCheck(ctx); err != nil {
		return stage.Unhealthy(s.Name(), err.Error())
	}
	return stage.Healthy(s.Name())
}
