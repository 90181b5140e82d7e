package store

import (
	"time"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

// Recorder journals dispatcher events under a single run. Write failures
// never interrupt the run; they are handed to the warn callback.
type Recorder struct {
	store  *Store
	runID  int64
	now    func() time.Time
	warn   func(error)
	failed bool
}

// StartRecorder begins a run and returns a Recorder for its events.
func (s *Store) StartRecorder(run *Run, warn func(error)) (*Recorder, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	id, err := s.BeginRun(run)
	if err != nil {
		return nil, err
	}
	if warn == nil {
		warn = func(error) {}
	}
	return &Recorder{store: s, runID: id, now: time.Now, warn: warn}, nil
}

// RunID returns the journal id of the run.
func (r *Recorder) RunID() int64 { return r.runID }

// Report implements retention.Reporter.
func (r *Recorder) Report(e retention.Event) {
	if e.Kind.Failed() {
		r.failed = true
	}

	ev := &Event{
		RunID:     r.runID,
		Timestamp: r.now(),
		Dataset:   e.Dataset,
		Class:     string(e.Class),
		Kind:      string(e.Kind),
		Snapshot:  e.Snapshot,
	}
	if e.Err != nil {
		ev.Message = e.Err.Error()
	}

	if err := r.store.InsertEvent(ev); err != nil {
		r.warn(err)
	}
}

// Finish closes the run, marking it failed if any failing event was seen
// or failed is set.
func (r *Recorder) Finish(failed bool) {
	if err := r.store.FinishRun(r.runID, r.now(), failed || r.failed); err != nil {
		r.warn(err)
	}
}
