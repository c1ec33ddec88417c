package stages

import (
	"context"
	"fmt"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
)

// Diarization calls the speaker diarization service and records the speaker
// turns on the pipeline context. It also captures the input duration reported
// by the service, which later stages use for span validation.
type Diarization struct {
	client *serviceClient
}

// NewDiarization constructs the diarization stage from its service config.
func NewDiarization(cfg config.StageService, opts ...Option) *Diarization {
	return &Diarization{client: newServiceClient(pipeline.StageDiarization, cfg, opts...)}
}

// Name implements stage.Stage.
func (d *Diarization) Name() string { return pipeline.StageDiarization }

type diarizationRequest struct {
	JobID     string `json:"job_id"`
	SourceKey string `json:"source_key"`
}

type diarizationResponse struct {
	Duration float64             `json:"duration"`
	Turns    []stage.SpeakerTurn `json:"turns"`
}

// Execute implements stage.Stage.
func (d *Diarization) Execute(ctx context.Context, pc *stage.Context) error {
	var resp diarizationResponse
	if err := d.client.postJSON(ctx, "/v1/diarize", diarizationRequest{
		JobID:     pc.JobID,
		SourceKey: pc.SourceKey,
	}, &resp); err != nil {
		return err
	}
	if resp.Duration <= 0 {
		return fmt.Errorf("diarization: service reported non-positive duration %v", resp.Duration)
	}
	for i, turn := range resp.Turns {
		if turn.End < turn.Start {
			return fmt.Errorf("diarization: turn %d ends before it starts (%v > %v)", i, turn.Start, turn.End)
		}
	}
	pc.Duration = resp.Duration
	pc.SpeakerTurns = resp.Turns
	return nil
}

// HealthCheck implements stage.Stage.
func (d *Diarization) HealthCheck(ctx context.Context) stage.Health {
	if err := d.client.healthCheck(ctx); err != nil {
		return stage.Unhealthy(d.Name(), err.Error())
	}
	return stage.Healthy(d.Name())
}
