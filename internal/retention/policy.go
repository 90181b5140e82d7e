package retention

import (
	"errors"
	"fmt"
	"strings"
)

// Count is an optional retention count. The zero value means the class is
// not managed, which is different from keeping zero snapshots.
type Count struct {
	n   int
	set bool
}

// Keep returns a Count retaining the n most recent snapshots.
func Keep(n int) Count {
	return Count{n: n, set: true}
}

// Value returns the count and whether it is set.
func (c Count) Value() (int, bool) {
	return c.n, c.set
}

// IsSet reports whether the count is configured.
func (c Count) IsSet() bool {
	return c.set
}

func (c Count) String() string {
	if !c.set {
		return "unset"
	}
	return fmt.Sprintf("%d", c.n)
}

// Entry pairs a retention class with its optional count.
type Entry struct {
	Class Class
	Count Count
}

// Policy is the retention configuration for one dataset. It is built once
// and never modified afterwards.
type Policy struct {
	counts           map[Class]Count
	recursive        bool
	pruneAfterCreate bool
}

// PolicyOption configures optional Policy flags.
type PolicyOption func(*Policy)

// WithRecursive applies create and destroy to descendant datasets.
func WithRecursive(recursive bool) PolicyOption {
	return func(p *Policy) { p.recursive = recursive }
}

// WithPruneAfterCreate prunes each class right after snapshotting it.
func WithPruneAfterCreate(prune bool) PolicyOption {
	return func(p *Policy) { p.pruneAfterCreate = prune }
}

// NewPolicy builds a Policy from the configured counts. Classes missing
// from counts are left unmanaged.
func NewPolicy(counts map[Class]int, opts ...PolicyOption) (Policy, error) {
	p := Policy{counts: make(map[Class]Count, len(counts))}

	for class, n := range counts {
		if !class.Valid() {
			return Policy{}, &ConfigError{Field: "retention class", Err: fmt.Errorf("%w: %q", ErrInvalidClass, class)}
		}
		if n < 0 {
			return Policy{}, &ConfigError{Field: string(class) + " count", Err: fmt.Errorf("must be non-negative, got %d", n)}
		}
		p.counts[class] = Keep(n)
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p, nil
}

// Count returns the retention count configured for class.
func (p Policy) Count(class Class) Count {
	return p.counts[class]
}

// Recursive reports whether operations apply to descendant datasets.
func (p Policy) Recursive() bool {
	return p.recursive
}

// PruneAfterCreate reports whether a class is pruned right after creation.
func (p Policy) PruneAfterCreate() bool {
	return p.pruneAfterCreate
}

// Entries returns every class with its count, in processing order.
func (p Policy) Entries() []Entry {
	entries := make([]Entry, 0, len(Classes))
	for _, class := range Classes {
		entries = append(entries, Entry{Class: class, Count: p.counts[class]})
	}
	return entries
}

// Managed returns the classes that have a count configured.
func (p Policy) Managed() []Class {
	var classes []Class
	for _, class := range Classes {
		if p.counts[class].IsSet() {
			classes = append(classes, class)
		}
	}
	return classes
}

// Validate rejects a policy that manages no class at all.
func (p Policy) Validate() error {
	if len(p.Managed()) == 0 {
		return &ConfigError{Err: errors.New("no retention class configured: set at least one of hourly, daily, monthly, yearly")}
	}
	return nil
}

func (p Policy) String() string {
	var parts []string
	for _, class := range p.Managed() {
		parts = append(parts, fmt.Sprintf("%s=%s", class, p.counts[class]))
	}
	if p.recursive {
		parts = append(parts, "recursive")
	}
	if p.pruneAfterCreate {
		parts = append(parts, "prune-after-create")
	}
	return strings.Join(parts, " ")
}
