package stages

import (
	"context"
	"fmt"
	"sort"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
)

// Segmentation calls the content segmentation service, which derives
// boundaries from scene and topic changes in the transcript. An empty
// boundary list is a legitimate outcome (short or uniform inputs) and is
// passed through unchanged; the executor owns the full-span substitution.
type Segmentation struct {
	client *serviceClient
}

// NewSegmentation constructs the segmentation stage from its service config.
func NewSegmentation(cfg config.StageService, opts ...Option) *Segmentation {
	return &Segmentation{client: newServiceClient(pipeline.StageSegmentation, cfg, opts...)}
}

// Name implements stage.Stage.
func (s *Segmentation) Name() string { return pipeline.StageSegmentation }

type segmentationRequest struct {
	JobID      string                    `json:"job_id"`
	SourceKey  string                    `json:"source_key"`
	Duration   float64                   `json:"duration"`
	Transcript []stage.TranscriptSegment `json:"transcript,omitempty"`
}

type segmentationResponse struct {
	Boundaries []stage.Boundary `json:"boundaries"`
}

// Execute implements stage.Stage.
func (s *Segmentation) Execute(ctx context.Context, pc *stage.Context) error {
	var resp segmentationResponse
	if err := s.client.postJSON(ctx, "/v1/segment", segmentationRequest{
		JobID:      pc.JobID,
		SourceKey:  pc.SourceKey,
		Duration:   pc.Duration,
		Transcript: pc.Transcript,
	}, &resp); err != nil {
		return err
	}

	boundaries := resp.Boundaries
	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].Start < boundaries[j].Start
	})
	for i := range boundaries {
		if boundaries[i].End < boundaries[i].Start {
			return fmt.Errorf("segmentation: boundary %d ends before it starts (%v > %v)", i, boundaries[i].Start, boundaries[i].End)
		}
		if i > 0 && boundaries[i].Start < boundaries[i-1].End {
			return fmt.Errorf("segmentation: boundary %d overlaps its predecessor", i)
		}
		boundaries[i].Index = i
	}
	pc.Boundaries = boundaries
	return nil
}

// HealthCheck implements stage.Stage.
func (s *Segmentation) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.healthCheck(ctx); err != nil {
		return stage.Unhealthy(s.Name(), err.Error())
	}
	return stage.Healthy(s.Name())
}
