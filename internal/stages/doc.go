// Package stages provides the concrete pipeline stage implementations. Each
// stage fronts one external HTTP service (diarization, transcription,
// segmentation, keyframe extraction, summarization) through a shared client
// with bounded retry, and validates the service response before extending the
// pipeline context.
package stages
