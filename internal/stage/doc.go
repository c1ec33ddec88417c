// Package stage defines the uniform contract pipeline stages implement and
// the accumulated Context they thread between each other.
//
// Concrete stages differ wildly internally (diarization, transcription,
// segmentation, keyframe extraction, summarization) but share one shape: take
// the context, extend it, or fail with a tagged error. The executor in
// internal/pipeline is the only caller.
package stage
