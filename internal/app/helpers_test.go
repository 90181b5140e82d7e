package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

// memStore is an in-memory snapshot store shared by the command tests.
type memStore struct {
	mu          sync.Mutex
	filesystems map[string]bool
	snapshots   map[string][]string
	held        map[string]bool

	created   []string
	destroyed []string
}

func newMemStore(datasets ...string) *memStore {
	m := &memStore{
		filesystems: make(map[string]bool),
		snapshots:   make(map[string][]string),
		held:        make(map[string]bool),
	}
	for _, ds := range datasets {
		m.filesystems[ds] = true
	}
	return m
}

func (m *memStore) add(dataset string, names ...string) {
	for _, name := range names {
		m.snapshots[dataset] = append(m.snapshots[dataset], dataset+"@"+name)
	}
	sort.Strings(m.snapshots[dataset])
}

func (m *memStore) FilesystemExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filesystems[name], nil
}

func (m *memStore) ListSnapshots(ctx context.Context, dataset string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.snapshots[dataset]...), nil
}

func (m *memStore) CreateSnapshot(ctx context.Context, dataset, name string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := dataset + "@" + name
	m.created = append(m.created, id)
	m.snapshots[dataset] = append(m.snapshots[dataset], id)
	sort.Strings(m.snapshots[dataset])
	return nil
}

func (m *memStore) DestroySnapshot(ctx context.Context, id string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[id] {
		return errors.New("dataset is busy")
	}
	dataset := id[:strings.IndexByte(id, '@')]
	snaps := m.snapshots[dataset]
	for i, existing := range snaps {
		if existing == id {
			m.snapshots[dataset] = append(snaps[:i:i], snaps[i+1:]...)
			m.destroyed = append(m.destroyed, id)
			return nil
		}
	}
	return errors.New("could not find any snapshots to destroy")
}

func (m *memStore) count(dataset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots[dataset])
}

func hourly(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "2024_01_01-" + twoDigits(i) + "_00_00-hourly"
	}
	return names
}

func twoDigits(i int) string {
	return string([]byte{byte('0' + i/10), byte('0' + i%10)})
}

// useStore routes every command to snapshots and pretends to run as root.
func useStore(t *testing.T, snapshots retention.Store) {
	t.Helper()
	oldStore, oldEUID := newSnapshotStore, geteuid
	newSnapshotStore = func(string) retention.Store { return snapshots }
	geteuid = func() int { return 0 }
	t.Cleanup(func() {
		newSnapshotStore, geteuid = oldStore, oldEUID
	})
}

// resetFlags returns every command flag and its backing variable to the
// default, since cobra keeps parsed values between Execute calls.
func resetFlags() {
	var reset func(cmd *cobra.Command)
	reset = func(cmd *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				if f.Value.Type() != "int" || f.DefValue != "" {
					_ = f.Value.Set(f.DefValue)
				}
				f.Changed = false
			})
		}
		for _, sub := range cmd.Commands() {
			reset(sub)
		}
	}
	reset(RootCmd)

	hourlyCount, dailyCount, monthlyCount, yearlyCount = retention.Count{}, retention.Count{}, retention.Count{}, retention.Count{}
	journalPath, noJournal, zfsBinary = "", false, ""
	schedulePIDFile, scheduleLogFile = "", ""
}

// executeCommand runs zsnap with args and returns stdout and stderr.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var stdout, stderr bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(&stderr)
	RootCmd.SetArgs(args)
	defer func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	}()

	err := ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// tempJournal returns a journal path in a fresh temporary directory.
func tempJournal(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "journal.db")
}

func isConfigError(err error) bool {
	var cfgErr *retention.ConfigError
	return errors.As(err, &cfgErr)
}
