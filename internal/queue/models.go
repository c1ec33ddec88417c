package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is one enqueue notification awaiting dispatch. The body is the raw
// JSON payload; parsing it is the dispatcher's concern so malformed payloads
// still flow through redelivery and dead-lettering like any other message.
type Message struct {
	ID           int64
	Body         []byte
	ReceiveCount int
	EnqueuedAt   time.Time
	AvailableAt  time.Time
}

// DeadLetter is a message that exceeded the redelivery limit.
type DeadLetter struct {
	ID           int64
	MessageID    int64
	Body         []byte
	ReceiveCount int
	Reason       string
	DeadAt       time.Time
	ReplayedAt   *time.Time
}

// Notification is the enqueue payload carried by a message body. Both
// upstream triggers (storage events and client confirmation calls) produce
// this shape into the same job_id space.
type Notification struct {
	JobID     string            `json:"job_id"`
	SourceKey string            `json:"source_key"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EncodeNotification renders a notification as a message body.
func EncodeNotification(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeNotification parses a message body and checks the required fields.
func DecodeNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	n.JobID = strings.TrimSpace(n.JobID)
	n.SourceKey = strings.TrimSpace(n.SourceKey)
	if n.JobID == "" {
		return Notification{}, errors.New("decode notification: job_id required")
	}
	if n.SourceKey == "" {
		return Notification{}, errors.New("decode notification: source_key required")
	}
	return n, nil
}
