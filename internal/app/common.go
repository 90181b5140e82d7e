package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/output"
	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/store"
	"github.com/blackwell-systems/zsnap/internal/zfs"
)

// ErrOperationsFailed is returned when at least one create or destroy
// attempt failed. Each failure has already been printed.
var ErrOperationsFailed = errors.New("one or more snapshot operations failed")

// ErrNotPrivileged is returned when zsnap is not run as root.
var ErrNotPrivileged = errors.New("zsnap must be run as root (set ZSNAP_SKIP_PRIVILEGE_CHECK=1 when zfs permissions are delegated with 'zfs allow')")

// skipPrivilegeEnv disables the root check for delegated setups.
const skipPrivilegeEnv = "ZSNAP_SKIP_PRIVILEGE_CHECK"

// Replaced in tests.
var (
	geteuid          = os.Geteuid
	newSnapshotStore = func(binary string) retention.Store {
		return zfs.New(zfs.WithBinary(binary))
	}
)

func checkPrivilege() error {
	if os.Getenv(skipPrivilegeEnv) == "1" {
		return nil
	}
	if geteuid() != 0 {
		return ErrNotPrivileged
	}
	return nil
}

// exactlyOneDataset is cobra.ExactArgs(1) reporting a ConfigError.
func exactlyOneDataset(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 1:
		return nil
	case 0:
		return &retention.ConfigError{Field: "arguments", Err: errors.New("missing dataset")}
	default:
		return &retention.ConfigError{Field: "arguments", Err: fmt.Errorf("expected one dataset, got %d: %s", len(args), strings.Join(args, " "))}
	}
}

// countValue is a pflag.Value that records whether a retention count was
// given, so an omitted class stays unmanaged rather than keeping zero.
type countValue struct {
	count *retention.Count
}

func (v countValue) String() string {
	if v.count == nil || !v.count.IsSet() {
		return ""
	}
	return v.count.String()
}

func (v countValue) Set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid count %q: expected a non-negative integer", s)
	}
	if n < 0 {
		return fmt.Errorf("invalid count %d: must be non-negative", n)
	}
	*v.count = retention.Keep(n)
	return nil
}

func (v countValue) Type() string {
	return "int"
}

// openJournal opens the journal at path, creating its schema. An empty
// path or "none" disables journaling and returns nil.
func openJournal(path string) (*store.Store, error) {
	if noJournal || path == "none" {
		return nil, nil
	}

	if path == "" {
		var err error
		path, err = getJournalPath()
		if err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	st, err := store.New(path)
	if err != nil {
		return nil, err
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// journalRun bundles an optional recorder with the reporters of a run.
type journalRun struct {
	recorder *store.Recorder
}

// startJournalRun records the beginning of a run. Journal failures are
// printed as warnings and never stop the run.
func startJournalRun(st *store.Store, warn io.Writer, run *store.Run) *journalRun {
	jr := &journalRun{}
	if st == nil {
		return jr
	}

	rec, err := st.StartRecorder(run, func(err error) {
		fmt.Fprintf(warn, "Warning: journal: %v\n", err)
	})
	if err != nil {
		fmt.Fprintf(warn, "Warning: journal: %v\n", err)
		return jr
	}
	jr.recorder = rec
	return jr
}

// reporter returns the journal recorder, or nil when journaling is off.
func (jr *journalRun) reporter() retention.Reporter {
	if jr.recorder == nil {
		return nil
	}
	return jr.recorder
}

func (jr *journalRun) finish(failed bool) {
	if jr.recorder != nil {
		jr.recorder.Finish(failed)
	}
}

// newDispatcher wires the snapshot store to a dispatcher reporting to
// every given reporter.
func newDispatcher(snapshots retention.Store, dryRun bool, reporters ...retention.Reporter) *retention.Dispatcher {
	return retention.NewDispatcher(
		retention.NewCreator(snapshots),
		retention.NewPruner(snapshots).WithDryRun(dryRun),
		retention.MultiReporter(reporters),
	)
}

// newLogger builds the scheduler's slog logger.
func newLogger(w io.Writer, level, format string, verbose bool) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, &retention.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", level)}
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, &retention.ConfigError{Field: "logging.format", Err: fmt.Errorf("unknown format %q", format)}
	}
}

// logReporter writes dispatcher events to a structured logger.
type logReporter struct {
	log *slog.Logger
}

func (r logReporter) Report(e retention.Event) {
	attrs := []any{"dataset", e.Dataset, "class", e.Class, "kind", e.Kind}
	if e.Snapshot != "" {
		attrs = append(attrs, "snapshot", e.Snapshot)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
		r.log.Error(output.FormatEvent(e), attrs...)
		return
	}
	r.log.Info(output.FormatEvent(e), attrs...)
}
