package store

import "time"

// Run is one invocation of an action against a dataset.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Source     string    // "cli", "run" or "schedule"
	Action     string
	Dataset    string
	Policy     string
	Recursive  bool
	DryRun     bool
	Failed     bool
}

// Event is a single reported outcome within a run.
type Event struct {
	ID        int64
	RunID     int64
	Timestamp time.Time
	Dataset   string
	Class     string
	Kind      string
	Snapshot  string
	Message   string
}
