// Package audit records switch attempts and profile edits as JSON lines.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/starsdaisuki/stargate/pkg/shell"
)

// Operation names written to the log.
const (
	OpSwitch        = "switch"
	OpProfileAdd    = "profile.add"
	OpProfileEdit   = "profile.edit"
	OpProfileDelete = "profile.delete"
	OpProfileClear  = "profile.clear-active"
)

// Event is one audited action.
type Event struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	User        string             `json:"user"`
	Host        string             `json:"host"` // "local" or the SSH target
	Operation   string             `json:"operation"`
	ProfileID   string             `json:"profile_id,omitempty"`
	ProfileName string             `json:"profile_name,omitempty"`
	Interface   string             `json:"interface,omitempty"`
	Gateway     string             `json:"gateway,omitempty"`
	Steps       []shell.StepResult `json:"steps,omitempty"`
	Success     bool               `json:"success"`
	Reachable   bool               `json:"reachable,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
	DryRun      bool               `json:"dry_run,omitempty"`
	Duration    time.Duration      `json:"duration"`
}

// Filter selects events from a log. Zero fields match everything.
type Filter struct {
	Host        string
	User        string
	Operation   string
	ProfileID   string
	Interface   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
	// Last keeps only the newest N matches, applied before Offset and Limit.
	Last int
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(user, host, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Host:      host,
		Operation: operation,
	}
}

func (e *Event) WithProfile(id, name string) *Event {
	e.ProfileID = id
	e.ProfileName = name
	return e
}

func (e *Event) WithInterface(iface string) *Event {
	e.Interface = iface
	return e
}

func (e *Event) WithGateway(gw string) *Event {
	e.Gateway = gw
	return e
}

func (e *Event) WithSteps(steps []shell.StepResult) *Event {
	e.Steps = steps
	return e
}

// WithSuccess marks the event successful with a user-facing message.
func (e *Event) WithSuccess(message string) *Event {
	e.Success = true
	e.Message = message
	return e
}

// WithReachable records whether the new gateway answered verification.
func (e *Event) WithReachable(ok bool) *Event {
	e.Reachable = ok
	return e
}

// WithError marks the event failed. A nil err still marks failure.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func (e *Event) WithDryRun(dry bool) *Event {
	e.DryRun = dry
	return e
}

func (f Filter) matches(e *Event) bool {
	switch {
	case f.Host != "" && e.Host != f.Host,
		f.User != "" && e.User != f.User,
		f.Operation != "" && e.Operation != f.Operation,
		f.ProfileID != "" && e.ProfileID != f.ProfileID,
		f.Interface != "" && e.Interface != f.Interface,
		!f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime),
		!f.EndTime.IsZero() && e.Timestamp.After(f.EndTime),
		f.SuccessOnly && !e.Success,
		f.FailureOnly && e.Success:
		return false
	}
	return true
}

func (f Filter) window(events []*Event) []*Event {
	if f.Last > 0 && f.Last < len(events) {
		events = events[len(events)-f.Last:]
	}
	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*Event{}
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}
