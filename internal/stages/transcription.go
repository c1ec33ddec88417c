package stages

import (
	"context"
	"fmt"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
)

// Transcription calls the speech-to-text service. The diarized speaker turns
// are forwarded so the service can align utterances to speakers.
type Transcription struct {
	client *serviceClient
}

// NewTranscription constructs the transcription stage from its service config.
func NewTranscription(cfg config.StageService, opts ...Option) *Transcription {
	return &Transcription{client: newServiceClient(pipeline.StageTranscription, cfg, opts...)}
}

// Name implements stage.Stage.
func (t *Transcription) Name() string { return pipeline.StageTranscription }

type transcriptionRequest struct {
	JobID        string              `json:"job_id"`
	SourceKey    string              `json:"source_key"`
	SpeakerTurns []stage.SpeakerTurn `json:"speaker_turns,omitempty"`
}

type transcriptionResponse struct {
	Segments []stage.TranscriptSegment `json:"segments"`
}

// Execute implements stage.Stage.
func (t *Transcription) Execute(ctx context.Context, pc *stage.Context) error {
	var resp transcriptionResponse
	if err := t.client.postJSON(ctx, "/v1/transcribe", transcriptionRequest{
		JobID:        pc.JobID,
		SourceKey:    pc.SourceKey,
		SpeakerTurns: pc.SpeakerTurns,
	}, &resp); err != nil {
		return err
	}
	for i, segment := range resp.Segments {
		if segment.End < segment.Start {
			return fmt.Errorf("transcription: segment %d ends before it starts (%v > %v)", i, segment.Start, segment.End)
		}
	}
	pc.Transcript = resp.Segments
	return nil
}

// HealthCheck implements stage.Stage.
func (t *Transcription) HealthCheck(ctx context.Context) stage.Health {
	if err := t.client.healthCheck(ctx); err != nil {
		return stage.Unhealthy(t.Name(), err.Error())
	}
	return stage.Healthy(t.Name())
}
