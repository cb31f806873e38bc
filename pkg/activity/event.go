// Package activity records what the user did through the data layer: toggle
// clicks and mutation outcomes. Events are batched and written to BigQuery or
// archived to Cloud Storage. Recording never blocks or fails the caller.
package activity

import (
	"path"
	"time"

	"github.com/google/uuid"
)

const (
	// KindClick is a click on a relation toggle.
	KindClick = "click"
	// KindMutation is the outcome of one mutation call.
	KindMutation = "mutation"
)

const (
	DirectionCreate = "create"
	DirectionRemove = "remove"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	// OutcomePrompted is a click that only raised the login prompt.
	OutcomePrompted = "prompted"
)

// Event is one recorded action. Field tags serve both the BigQuery schema
// inference and the JSON-lines archive.
type Event struct {
	ID         string    `bigquery:"id" json:"id"`
	Kind       string    `bigquery:"kind" json:"kind"`
	Name       string    `bigquery:"name" json:"name"`
	Target     int64     `bigquery:"target" json:"target,omitempty"`
	Viewer     int64     `bigquery:"viewer" json:"viewer,omitempty"`
	HasViewer  bool      `bigquery:"has_viewer" json:"has_viewer"`
	Current    bool      `bigquery:"current" json:"current"`
	Direction  string    `bigquery:"direction" json:"direction,omitempty"`
	Outcome    string    `bigquery:"outcome" json:"outcome,omitempty"`
	Error      string    `bigquery:"error" json:"error,omitempty"`
	OccurredAt time.Time `bigquery:"occurred_at" json:"occurred_at"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(kind, name string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Name:       name,
		OccurredAt: time.Now().UTC(),
	}
}

// SetOutcome records success, or the error and its message.
func (e *Event) SetOutcome(err error) {
	if err != nil {
		e.Outcome = OutcomeError
		e.Error = err.Error()
		return
	}
	e.Outcome = OutcomeSuccess
}

// BatchKey groups events into archive objects by day and kind, e.g.
// "2026/10/16/click".
func (e *Event) BatchKey() string {
	return path.Join(e.OccurredAt.UTC().Format("2006/01/02"), e.Kind)
}
