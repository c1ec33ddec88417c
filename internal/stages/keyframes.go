package stages

import (
	"context"
	"fmt"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
)

// Keyframes calls the keyframe extraction service, which picks one
// representative frame per content boundary.
type Keyframes struct {
	client *serviceClient
}

// NewKeyframes constructs the keyframe stage from its service config.
func NewKeyframes(cfg config.StageService, opts ...Option) *Keyframes {
	return &Keyframes{client: newServiceClient(pipeline.StageKeyframes, cfg, opts...)}
}

// Name implements stage.Stage.
func (k *Keyframes) Name() string { return pipeline.StageKeyframes }

type keyframesRequest struct {
	JobID      string           `json:"job_id"`
	SourceKey  string           `json:"source_key"`
	Boundaries []stage.Boundary `json:"boundaries"`
}

type keyframesResponse struct {
	Keyframes []stage.Keyframe `json:"keyframes"`
}

// Execute implements stage.Stage.
func (k *Keyframes) Execute(ctx context.Context, pc *stage.Context) error {
	var resp keyframesResponse
	if err := k.client.postJSON(ctx, "/v1/keyframes", keyframesRequest{
		JobID:      pc.JobID,
		SourceKey:  pc.SourceKey,
		Boundaries: pc.Boundaries,
	}, &resp); err != nil {
		return err
	}
	for i, frame := range resp.Keyframes {
		if frame.BoundaryIndex < 0 || frame.BoundaryIndex >= len(pc.Boundaries) {
			return fmt.Errorf("keyframes: frame %d references unknown boundary %d", i, frame.BoundaryIndex)
		}
		if frame.ImageKey == "" {
			return fmt.Errorf("keyframes: frame %d has no image key", i)
		}
	}
	pc.Keyframes = resp.Keyframes
	return nil
}

// HealthCheck implements stage.Stage.
func (k *Keyframes) HealthCheck(ctx context.Context) stage.Health {
	if err := k.client.healthCheck(ctx); err != nil {
		return stage.Unhealthy(k.Name(), err.Error())
	}
	return stage.Healthy(k.Name())
}
