package model

import (
	"time"

	"github.com/starsdaisuki/stargate/pkg/shell"
)

// SwitchOutcome is the result of one switch attempt. It is emitted to the
// caller and the audit log, never persisted as state.
type SwitchOutcome struct {
	ProfileID string             `json:"profile_id"`
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Reachable bool               `json:"reachable"` // gateway answered the verification probe
	Steps     []shell.StepResult `json:"steps,omitempty"`
	Duration  time.Duration      `json:"duration"`
}
