package wal

import (
	"encoding/json"
	"fmt"
)

// Operation is a write-ahead-logged intent. Every concrete operation type
// carries exactly the fields its recovery heuristic needs to re-check
// backend state; nothing more.
//
// Go has no tagged unions, so Operation is emulated with a marker method
// plus an envelope: Kind() identifies the concrete type for JSON
// round-tripping (see MarshalJSON/UnmarshalJSON on Entry).
type Operation interface {
	// Kind returns the operation's wire discriminator.
	Kind() string

	// Description returns a one-line human-readable summary, used by
	// wal status/recover output.
	Description() string
}

// Commit logs intent to create a commit in repoPath with message.
type Commit struct {
	RepoPath string `json:"repo_path"`
	Message  string `json:"message"`
}

func (Commit) Kind() string { return "commit" }

func (o Commit) Description() string {
	return fmt.Sprintf("Commit %q in %s", o.Message, o.RepoPath)
}

// Push logs intent to push repoPath's branch to remote.
type Push struct {
	RepoPath string `json:"repo_path"`
	Remote   string `json:"remote"`
	Branch   string `json:"branch"`
}

func (Push) Kind() string { return "push" }

func (o Push) Description() string {
	return fmt.Sprintf("Push %s to %s/%s", o.RepoPath, o.Remote, o.Branch)
}

// LockAcquire logs intent to acquire the distributed lock on repoPath.
type LockAcquire struct {
	RepoPath     string `json:"repo_path"`
	UserID       string `json:"user_id"`
	TimeoutHours int    `json:"timeout_hours"`
}

func (LockAcquire) Kind() string { return "lock_acquire" }

func (o LockAcquire) Description() string {
	return fmt.Sprintf("Lock %s by %s for %dh", o.RepoPath, o.UserID, o.TimeoutHours)
}

// LockRelease logs intent to release lockID on repoPath.
type LockRelease struct {
	RepoPath string `json:"repo_path"`
	LockID   string `json:"lock_id"`
}

func (LockRelease) Kind() string { return "lock_release" }

func (o LockRelease) Description() string {
	return fmt.Sprintf("Release lock %s in %s", o.LockID, o.RepoPath)
}

// StageFiles logs intent to stage files in repoPath.
type StageFiles struct {
	RepoPath string   `json:"repo_path"`
	Files    []string `json:"files"`
}

func (StageFiles) Kind() string { return "stage_files" }

func (o StageFiles) Description() string {
	return fmt.Sprintf("Stage %d files in %s", len(o.Files), o.RepoPath)
}

// operationEnvelope is the wire format for an Operation: a discriminator
// plus the concrete type's fields inlined via a second marshal pass.
type operationEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalOperation encodes op into its envelope wire form. Exported so
// other packages persisting Operation values (e.g. internal/queue) can
// reuse the same envelope without duplicating the kind dispatch.
func MarshalOperation(op Operation) ([]byte, error) {
	return marshalOperation(op)
}

// UnmarshalOperation decodes an envelope produced by MarshalOperation.
func UnmarshalOperation(raw []byte) (Operation, error) {
	return unmarshalOperation(raw)
}

func marshalOperation(op Operation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}

	return json.Marshal(operationEnvelope{Kind: op.Kind(), Data: data})
}

func unmarshalOperation(raw []byte) (Operation, error) {
	var env operationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case "commit":
		var o Commit
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case "push":
		var o Push
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case "lock_acquire":
		var o LockAcquire
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case "lock_release":
		var o LockRelease
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, err
		}
		return o, nil
	case "stage_files":
		var o StageFiles
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("wal: unknown operation kind %q", env.Kind)
	}
}
