package retention

import (
	"context"
	"time"
)

// Creator takes new snapshots tagged with a retention class.
type Creator struct {
	store Store
	now   func() time.Time
}

// NewCreator returns a Creator using the wall clock.
func NewCreator(store Store) *Creator {
	return &Creator{store: store, now: time.Now}
}

// WithClock replaces the clock used for snapshot names.
func (c *Creator) WithClock(now func() time.Time) *Creator {
	c.now = now
	return c
}

// Create snapshots dataset under class. Two calls within the same second
// produce the same name; the store rejects the second one.
func (c *Creator) Create(ctx context.Context, dataset string, class Class, recursive bool) (Snapshot, error) {
	if err := checkTarget(ctx, c.store, dataset, class); err != nil {
		return Snapshot{}, err
	}

	createdAt := c.now().Truncate(time.Second)
	name := SnapshotName(createdAt, class)
	snap := Snapshot{
		ID:        dataset + "@" + name,
		Dataset:   dataset,
		Name:      name,
		CreatedAt: createdAt,
		Class:     class,
	}

	if err := c.store.CreateSnapshot(ctx, dataset, name, recursive); err != nil {
		return snap, &StoreError{Op: "create", Target: snap.ID, Err: err}
	}

	return snap, nil
}
