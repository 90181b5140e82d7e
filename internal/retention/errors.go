package retention

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDataset is returned when a dataset is empty or does not
	// exist as a filesystem in the store.
	ErrInvalidDataset = errors.New("invalid dataset")

	// ErrInvalidClass is returned for an empty or unknown retention class.
	ErrInvalidClass = errors.New("invalid retention class")

	// ErrPartialPrune is returned when at least one expired snapshot could
	// not be destroyed. The remaining candidates are still attempted.
	ErrPartialPrune = errors.New("failed to destroy some expired snapshots")
)

// ConfigError reports invalid configuration detected before any store call.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PreconditionError aborts the processing of one dataset/class pair.
type PreconditionError struct {
	Dataset string
	Class   Class
	Err     error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s (dataset %q, class %q)", e.Err, e.Dataset, e.Class)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// StoreError wraps a failed call into the snapshot store.
type StoreError struct {
	Op     string // "list", "create" or "destroy"
	Target string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
