package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the dispatch and pipeline error taxonomy. Every error
// that crosses a component boundary is tagged with exactly one of these so
// callers can branch on errors.Is without parsing messages.
var (
	// ErrMalformedMessage tags enqueue payloads that cannot be parsed. The
	// message is left for redelivery and eventually dead-letters.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrDuplicateJob tags dispatch attempts that found a live idempotency
	// claim. This is the deduplication success path, not a failure.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrLaunchFailure tags worker launch errors. Transient: retried with
	// backoff, then the claim is released and the message redelivered.
	ErrLaunchFailure = errors.New("launch failure")
	// ErrStageFailure tags pipeline stage errors. Terminal for the job.
	ErrStageFailure = errors.New("stage failure")
	// ErrPublication tags post-completion sink errors. Logged as an alert;
	// never reverts a completed job.
	ErrPublication = errors.New("publication failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the taxonomy bucket an error belongs to.
type Kind string

const (
	KindMalformedMessage Kind = "malformed_message"
	KindDuplicateJob     Kind = "duplicate_job"
	KindLaunchFailure    Kind = "launch_failure"
	KindStageFailure     Kind = "stage_failure"
	KindPublication      Kind = "publication_failure"
	KindUnknown          Kind = "unknown"
)

// KindOf classifies an error against the sentinel markers.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return KindMalformedMessage
	case errors.Is(err, ErrDuplicateJob):
		return KindDuplicateJob
	case errors.Is(err, ErrLaunchFailure):
		return KindLaunchFailure
	case errors.Is(err, ErrStageFailure):
		return KindStageFailure
	case errors.Is(err, ErrPublication):
		return KindPublication
	default:
		return KindUnknown
	}
}

// ErrorDetails carries structured information extracted from a tagged error
// for logging and job record persistence.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details extracts structured details from a tagged error. The message is the
// full detail chain minus the marker prefix so job records stay readable.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	kind := KindOf(err)
	message := err.Error()
	for _, marker := range []error{ErrMalformedMessage, ErrDuplicateJob, ErrLaunchFailure, ErrStageFailure, ErrPublication} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return ErrorDetails{
		Kind:    kind,
		Message: message,
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
