package stages

import (
	"sprocket/internal/config"
	"sprocket/internal/stage"
)

// FromConfig builds the full stage list in canonical execution order.
func FromConfig(cfg config.Stages, opts ...Option) []stage.Stage {
	return []stage.Stage{
		NewDiarization(cfg.Diarization, opts...),
		NewTranscription(cfg.Transcription, opts...),
		NewSegmentation(cfg.Segmentation, opts...),
		NewKeyframes(cfg.Keyframes, opts...),
		NewSummary(cfg.Summary, opts...),
	}
}
