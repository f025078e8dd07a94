package wal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is an Entry's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRecovered  Status = "recovered"
)

// entryMaxAge is how long a terminal (completed/failed/recovered) entry is
// kept before Cleanup removes it. Pending and in-progress entries are never
// aged out, regardless of how old they are — they always need recovery.
const entryMaxAge = 24 * time.Hour

// Entry is one logged intent and its current disposition.
type Entry struct {
	ID               string
	Operation        Operation
	Status           Status
	FailureReason    string // set only when Status == StatusFailed
	CreatedAt        time.Time
	UpdatedAt        time.Time
	User             string
	MachineID        string
	RecoveryAttempts int
}

// NewEntry builds a Pending entry for op, stamped with the given identity
// and the current time.
func NewEntry(op Operation, user, machineID string, now time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Operation: op,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		User:      user,
		MachineID: machineID,
	}
}

// IsIncomplete reports whether e still needs to be driven to a terminal
// state (Pending or InProgress).
func (e Entry) IsIncomplete() bool {
	return e.Status == StatusPending || e.Status == StatusInProgress
}

// IsStale reports whether e is old enough for Cleanup to remove it. Only
// meaningful for terminal entries; callers should check IsIncomplete first.
func (e Entry) IsStale(now time.Time) bool {
	return now.Sub(e.CreatedAt) > entryMaxAge
}

// Description returns a one-line human-readable summary of e's operation.
func (e Entry) Description() string {
	if e.Operation == nil {
		return "(unknown operation)"
	}

	return e.Operation.Description()
}

// entryJSON is Entry's wire representation: the Operation field is
// flattened into the envelope form (see operation.go) since Operation
// itself doesn't know how to marshal/unmarshal polymorphically.
type entryJSON struct {
	ID               string          `json:"id"`
	Operation        json.RawMessage `json:"operation"`
	Status           Status          `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	User             string          `json:"user"`
	MachineID        string          `json:"machine_id"`
	RecoveryAttempts int             `json:"recovery_attempts"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	opData, err := marshalOperation(e.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(entryJSON{
		ID:               e.ID,
		Operation:        opData,
		Status:           e.Status,
		FailureReason:    e.FailureReason,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		User:             e.User,
		MachineID:        e.MachineID,
		RecoveryAttempts: e.RecoveryAttempts,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	op, err := unmarshalOperation(raw.Operation)
	if err != nil {
		return err
	}

	*e = Entry{
		ID:               raw.ID,
		Operation:        op,
		Status:           raw.Status,
		FailureReason:    raw.FailureReason,
		CreatedAt:        raw.CreatedAt,
		UpdatedAt:        raw.UpdatedAt,
		User:             raw.User,
		MachineID:        raw.MachineID,
		RecoveryAttempts: raw.RecoveryAttempts,
	}

	return nil
}

// Stats summarizes a Log's entries by status.
type Stats struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Recovered  int
}
