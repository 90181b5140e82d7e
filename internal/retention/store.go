package retention

import (
	"context"
	"fmt"
	"strings"
)

// Store is the snapshot storage engine. Implementations run synchronously;
// internal/zfs provides one backed by the zfs command.
type Store interface {
	// FilesystemExists reports whether name is an existing filesystem.
	FilesystemExists(ctx context.Context, name string) (bool, error)

	// ListSnapshots returns the snapshot ids of dataset, oldest first.
	ListSnapshots(ctx context.Context, dataset string) ([]string, error)

	// CreateSnapshot creates dataset@name.
	CreateSnapshot(ctx context.Context, dataset, name string, recursive bool) error

	// DestroySnapshot destroys the snapshot with the given id.
	DestroySnapshot(ctx context.Context, id string, recursive bool) error
}

// checkTarget validates the dataset/class pair shared by create and prune.
// Existence is asked of the store on every call.
func checkTarget(ctx context.Context, store Store, dataset string, class Class) error {
	if !class.Valid() {
		return &PreconditionError{Dataset: dataset, Class: class, Err: ErrInvalidClass}
	}
	return checkDataset(ctx, store, dataset, class)
}

// checkDatasetName rejects identifiers that can never name a filesystem.
func checkDatasetName(dataset string, class Class) error {
	if strings.TrimSpace(dataset) == "" || strings.ContainsAny(dataset, "@ \t\n") {
		return &PreconditionError{Dataset: dataset, Class: class, Err: ErrInvalidDataset}
	}
	return nil
}

func checkDataset(ctx context.Context, store Store, dataset string, class Class) error {
	if err := checkDatasetName(dataset, class); err != nil {
		return err
	}

	exists, err := store.FilesystemExists(ctx, dataset)
	if err != nil {
		return &PreconditionError{Dataset: dataset, Class: class, Err: fmt.Errorf("%w: %v", ErrInvalidDataset, err)}
	}
	if !exists {
		return &PreconditionError{Dataset: dataset, Class: class, Err: ErrInvalidDataset}
	}
	return nil
}
