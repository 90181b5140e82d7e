package retention

import (
	"context"
	"fmt"
)

// PruneStatus summarizes what a prune call did.
type PruneStatus string

const (
	StatusPruned              PruneStatus = "pruned"
	StatusSkippedNoPolicy     PruneStatus = "skipped-no-policy"
	StatusSkippedWithinPolicy PruneStatus = "skipped-within-policy"
)

// Outcome is the result of destroying one expired snapshot.
type Outcome struct {
	Snapshot  Snapshot
	Target    string // id handed to the store
	Destroyed bool
	Err       error
}

// PruneReport describes a prune call for one dataset and class.
type PruneReport struct {
	Dataset  string
	Class    Class
	Retain   Count
	Total    int
	Status   PruneStatus
	DryRun   bool
	Outcomes []Outcome
}

// Destroyed returns the number of snapshots actually destroyed.
func (r *PruneReport) Destroyed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Destroyed {
			n++
		}
	}
	return n
}

// Failures returns the outcomes whose destroy call failed.
func (r *PruneReport) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Failed reports whether at least one destroy call failed.
func (r *PruneReport) Failed() bool {
	return len(r.Failures()) > 0
}

// Pruner destroys the oldest snapshots of a class beyond its retention count.
type Pruner struct {
	store  Store
	dryRun bool
}

// NewPruner returns a Pruner backed by store.
func NewPruner(store Store) *Pruner {
	return &Pruner{store: store}
}

// WithDryRun makes the pruner report candidates without destroying them.
func (p *Pruner) WithDryRun(dryRun bool) *Pruner {
	p.dryRun = dryRun
	return p
}

// SelectExpired returns the snapshots of class that exceed keep, oldest
// first. snaps must be ordered oldest first.
func SelectExpired(snaps []Snapshot, class Class, keep int) []Snapshot {
	var matching []Snapshot
	for _, s := range snaps {
		if s.Class == class {
			matching = append(matching, s)
		}
	}

	if keep < 0 {
		keep = 0
	}
	if len(matching) <= keep {
		return nil
	}

	return matching[:len(matching)-keep]
}

// Prune destroys the oldest snapshots of class in dataset so that at most
// retain remain. Every candidate is attempted even when an earlier one
// fails. A non-nil report is returned whenever the dataset was examined;
// the error is ErrPartialPrune if any destroy failed.
func (p *Pruner) Prune(ctx context.Context, dataset string, class Class, retain Count, recursive bool) (*PruneReport, error) {
	if !class.Valid() {
		return nil, &PreconditionError{Dataset: dataset, Class: class, Err: ErrInvalidClass}
	}
	if err := checkDatasetName(dataset, class); err != nil {
		return nil, err
	}

	report := &PruneReport{
		Dataset: dataset,
		Class:   class,
		Retain:  retain,
		DryRun:  p.dryRun,
	}

	keep, ok := retain.Value()
	if !ok {
		report.Status = StatusSkippedNoPolicy
		return report, nil
	}

	if err := checkDataset(ctx, p.store, dataset, class); err != nil {
		return nil, err
	}

	ids, err := p.store.ListSnapshots(ctx, dataset)
	if err != nil {
		return nil, &StoreError{Op: "list snapshots of", Target: dataset, Err: err}
	}

	snaps := ParseSnapshots(dataset, ids)
	for _, s := range snaps {
		if s.Class == class {
			report.Total++
		}
	}

	expired := SelectExpired(snaps, class, keep)
	if len(expired) == 0 {
		report.Status = StatusSkippedWithinPolicy
		return report, nil
	}

	report.Status = StatusPruned
	for _, snap := range expired {
		outcome := Outcome{Snapshot: snap, Target: destroyTarget(dataset, snap, recursive)}

		if !p.dryRun {
			if err := p.store.DestroySnapshot(ctx, outcome.Target, recursive); err != nil {
				outcome.Err = &StoreError{Op: "destroy", Target: outcome.Target, Err: err}
			} else {
				outcome.Destroyed = true
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	if failed := report.Failures(); len(failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d in %s (%s)", ErrPartialPrune, len(failed), len(expired), dataset, class)
	}

	return report, nil
}

// destroyTarget addresses a snapshot for the destroy call. Recursive
// destroys use the id from the listing; otherwise the id is rebuilt from
// the dataset and the bare snapshot name.
func destroyTarget(dataset string, snap Snapshot, recursive bool) string {
	if recursive {
		return snap.ID
	}
	return dataset + "@" + snap.Name
}
