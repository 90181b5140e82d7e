package retention

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// fakeStore is an in-memory Store. Snapshots are kept per dataset in
// creation order.
type fakeStore struct {
	filesystems map[string]bool
	snapshots   map[string][]string
	held        map[string]bool // ids whose destroy fails
	createErr   error
	listErr     error
	bare        bool // list names without the dataset prefix

	existsCalls  int
	listCalls    int
	createCalls  []string
	destroyCalls []string
	recursive    []bool
}

func newFakeStore(datasets ...string) *fakeStore {
	fs := &fakeStore{
		filesystems: make(map[string]bool),
		snapshots:   make(map[string][]string),
		held:        make(map[string]bool),
	}
	for _, ds := range datasets {
		fs.filesystems[ds] = true
	}
	return fs
}

func (f *fakeStore) add(dataset string, names ...string) {
	for _, name := range names {
		f.snapshots[dataset] = append(f.snapshots[dataset], dataset+"@"+name)
	}
}

func (f *fakeStore) FilesystemExists(ctx context.Context, name string) (bool, error) {
	f.existsCalls++
	return f.filesystems[name], nil
}

func (f *fakeStore) ListSnapshots(ctx context.Context, dataset string) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.snapshots[dataset]))
	for _, id := range f.snapshots[dataset] {
		if f.bare {
			id = id[strings.IndexByte(id, '@')+1:]
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) CreateSnapshot(ctx context.Context, dataset, name string, recursive bool) error {
	id := dataset + "@" + name
	f.createCalls = append(f.createCalls, id)
	f.recursive = append(f.recursive, recursive)
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.snapshots[dataset] {
		if existing == id {
			return errors.New("dataset already exists")
		}
	}
	f.snapshots[dataset] = append(f.snapshots[dataset], id)
	sort.Strings(f.snapshots[dataset])
	return nil
}

func (f *fakeStore) DestroySnapshot(ctx context.Context, id string, recursive bool) error {
	f.destroyCalls = append(f.destroyCalls, id)
	f.recursive = append(f.recursive, recursive)
	if f.held[id] {
		return errors.New("dataset is busy")
	}

	dataset := id[:strings.IndexByte(id, '@')]
	snaps := f.snapshots[dataset]
	for i, existing := range snaps {
		if existing == id {
			f.snapshots[dataset] = append(snaps[:i:i], snaps[i+1:]...)
			return nil
		}
	}
	return errors.New("could not find any snapshots to destroy")
}

// remaining returns the bare names of dataset's snapshots of class.
func (f *fakeStore) remaining(dataset string, class Class) []string {
	var names []string
	for _, s := range ParseSnapshots(dataset, f.snapshots[dataset]) {
		if s.Class == class {
			names = append(names, s.Name)
		}
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
