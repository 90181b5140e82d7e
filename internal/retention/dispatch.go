package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action is the top-level operation requested for a dataset.
type Action string

const (
	ActionCreate Action = "create"
	ActionPrune  Action = "prune"
)

// ParseAction converts "create" or "prune" into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCreate, ActionPrune:
		return a, nil
	case "":
		return "", &ConfigError{Field: "action", Err: errors.New("missing action: expected create or prune")}
	default:
		return "", &ConfigError{Field: "action", Err: fmt.Errorf("unknown action %q: expected create or prune", s)}
	}
}

// EventKind classifies a reported outcome.
type EventKind string

const (
	EventCreated             EventKind = "created"
	EventCreateFailed        EventKind = "create-failed"
	EventDestroyed           EventKind = "destroyed"
	EventDestroyFailed       EventKind = "destroy-failed"
	EventWouldDestroy        EventKind = "would-destroy"
	EventSkippedNoPolicy     EventKind = "skipped-no-policy"
	EventSkippedWithinPolicy EventKind = "skipped-within-policy"
	EventPreconditionFailed  EventKind = "precondition-failed"
	EventListFailed          EventKind = "list-failed"
)

// Failed reports whether the event counts towards a failed run.
func (k EventKind) Failed() bool {
	switch k {
	case EventCreateFailed, EventDestroyFailed, EventPreconditionFailed, EventListFailed:
		return true
	}
	return false
}

// Event is one outcome of a create or prune attempt. Every attempt yields
// exactly one event.
type Event struct {
	Action   Action
	Dataset  string
	Class    Class
	Kind     EventKind
	Snapshot string // snapshot id, when the event concerns one
	Total    int    // matching snapshots seen by prune
	Retain   Count
	Err      error
}

// Reporter receives events as they happen.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

// MultiReporter forwards each event to every reporter in order.
type MultiReporter []Reporter

// Report forwards e.
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Dispatcher runs create and prune for every class of a policy, one class
// at a time, and folds all failures into a single flag.
type Dispatcher struct {
	creator  *Creator
	pruner   *Pruner
	reporter Reporter
}

// NewDispatcher wires a Creator and Pruner to a Reporter.
func NewDispatcher(creator *Creator, pruner *Pruner, reporter Reporter) *Dispatcher {
	if reporter == nil {
		reporter = MultiReporter(nil)
	}
	return &Dispatcher{creator: creator, pruner: pruner, reporter: reporter}
}

// Run applies action to dataset for every class in policy. Classes are
// processed independently; the result is true if anything failed.
//
// Create only touches classes with a count. Prune visits every class so
// unmanaged ones are reported as skipped.
func (d *Dispatcher) Run(ctx context.Context, action Action, dataset string, policy Policy) bool {
	failed := false
	for _, entry := range policy.Entries() {
		if action == ActionCreate && !entry.Count.IsSet() {
			continue
		}
		if d.RunClass(ctx, action, dataset, entry.Class, policy) {
			failed = true
		}
	}
	return failed
}

// RunClass applies action to a single class of dataset.
func (d *Dispatcher) RunClass(ctx context.Context, action Action, dataset string, class Class, policy Policy) bool {
	switch action {
	case ActionCreate:
		if d.create(ctx, dataset, class, policy) {
			return true
		}
		if policy.PruneAfterCreate() {
			return d.prune(ctx, action, dataset, class, policy)
		}
		return false
	case ActionPrune:
		return d.prune(ctx, action, dataset, class, policy)
	default:
		d.reporter.Report(Event{
			Action:  action,
			Dataset: dataset,
			Class:   class,
			Kind:    EventPreconditionFailed,
			Err:     &ConfigError{Field: "action", Err: fmt.Errorf("unknown action %q", action)},
		})
		return true
	}
}

func (d *Dispatcher) create(ctx context.Context, dataset string, class Class, policy Policy) bool {
	snap, err := d.creator.Create(ctx, dataset, class, policy.Recursive())

	ev := Event{Action: ActionCreate, Dataset: dataset, Class: class, Snapshot: snap.ID, Err: err}
	switch {
	case err == nil:
		ev.Kind = EventCreated
	case isPrecondition(err):
		ev.Kind = EventPreconditionFailed
		ev.Snapshot = ""
	default:
		ev.Kind = EventCreateFailed
	}

	d.reporter.Report(ev)
	return err != nil
}

func (d *Dispatcher) prune(ctx context.Context, action Action, dataset string, class Class, policy Policy) bool {
	retain := policy.Count(class)
	report, err := d.pruner.Prune(ctx, dataset, class, retain, policy.Recursive())

	base := Event{Action: action, Dataset: dataset, Class: class, Retain: retain}
	if report == nil {
		ev := base
		ev.Err = err
		ev.Kind = EventListFailed
		if isPrecondition(err) {
			ev.Kind = EventPreconditionFailed
		}
		d.reporter.Report(ev)
		return true
	}

	base.Total = report.Total
	switch report.Status {
	case StatusSkippedNoPolicy:
		ev := base
		ev.Kind = EventSkippedNoPolicy
		d.reporter.Report(ev)
	case StatusSkippedWithinPolicy:
		ev := base
		ev.Kind = EventSkippedWithinPolicy
		d.reporter.Report(ev)
	default:
		for _, o := range report.Outcomes {
			ev := base
			ev.Snapshot = o.Target
			switch {
			case o.Err != nil:
				ev.Kind = EventDestroyFailed
				ev.Err = o.Err
			case o.Destroyed:
				ev.Kind = EventDestroyed
			default:
				ev.Kind = EventWouldDestroy
			}
			d.reporter.Report(ev)
		}
	}

	return err != nil
}

func isPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
