// Package publisher defines the outbound event contract used to notify
// downstream consumers about crawl and analysis runs.
package publisher

import (
	"context"
	"time"
)

// Publisher delivers one payload to a named topic and returns the
// provider's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunEvent is the payload published when a pipeline run finishes.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Operation string    `json:"operation"`
	Land      string    `json:"land,omitempty"`
	Processed int       `json:"processed"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
