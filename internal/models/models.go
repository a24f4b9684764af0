// Package models defines the persisted record types for tickos.
package models

import "time"

// DispatchKind says what kind of callback a dispatch ran.
type DispatchKind string

const (
	DispatchTask  DispatchKind = "task"
	DispatchEvent DispatchKind = "event"
)

// Session is one daemon run. Dispatch records belong to a session because
// tick values restart at zero each time the daemon starts.
type Session struct {
	ID            string     `json:"id"`
	FreqHz        int        `json:"freq_hz"`
	TaskCapacity  int        `json:"task_capacity"`
	DelayCapacity int        `json:"delay_capacity"`
	EventCapacity int        `json:"event_capacity"`
	StartedAt     time.Time  `json:"started_at"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	FinalTick     uint32     `json:"final_tick"`
}

// Dispatch records one task run or event fire.
type Dispatch struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Kind      DispatchKind `json:"kind"`
	// Ref is the task index or the event id.
	Ref  int       `json:"ref"`
	Name string    `json:"name,omitempty"`
	Tick uint32    `json:"tick"`
	At   time.Time `json:"at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Target     string    `json:"target,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
