package pipeline

// Canonical stage names. StageOrder below defines both execution order and
// the denominator for progress computation; it is identical for every job.
const (
	StageDiarization   = "diarization"
	StageTranscription = "transcription"
	StageSegmentation  = "segmentation"
	StageKeyframes     = "keyframes"
	StageSummary       = "summary"
)

// StageOrder is the fixed, process-wide sequence of mandatory stages.
var StageOrder = []string{
	StageDiarization,
	StageTranscription,
	StageSegmentation,
	StageKeyframes,
	StageSummary,
}

// StageIndex returns the position of a stage in the canonical order, or -1.
func StageIndex(name string) int {
	for i, stage := range StageOrder {
		if stage == name {
			return i
		}
	}
	return -1
}
