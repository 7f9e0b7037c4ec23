package history

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPublished Status = "published"
	StatusEnded     Status = "ended"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether s ends a run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPublished, StatusEnded, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Run is one orchestration recorded in the ledger.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	DescriptorPath string
	DataDir        string
	Status         Status
	Dispatched     bool
	ErrorKind      string
	ErrorMessage   string
	SeedPath       string
}

// Duration returns the elapsed run time, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
