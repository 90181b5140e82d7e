package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// FormatEvent describes a single outcome in one line, without color.
func FormatEvent(e retention.Event) string {
	prefix := fmt.Sprintf("[%s] ", e.Class)

	switch e.Kind {
	case retention.EventCreated:
		return prefix + "created " + e.Snapshot
	case retention.EventCreateFailed:
		return prefix + fmt.Sprintf("failed to create snapshot of %s: %v", e.Dataset, e.Err)
	case retention.EventDestroyed:
		return prefix + "destroyed " + e.Snapshot
	case retention.EventWouldDestroy:
		return prefix + "would destroy " + e.Snapshot
	case retention.EventDestroyFailed:
		return prefix + fmt.Sprintf("failed to destroy %s: %v", e.Snapshot, e.Err)
	case retention.EventSkippedNoPolicy:
		return prefix + fmt.Sprintf("skipped %s: no retention policy", e.Dataset)
	case retention.EventSkippedWithinPolicy:
		return prefix + fmt.Sprintf("skipped %s: %d snapshots, retaining %s", e.Dataset, e.Total, e.Retain)
	case retention.EventListFailed:
		return prefix + fmt.Sprintf("failed to prune %s: %v", e.Dataset, e.Err)
	case retention.EventPreconditionFailed:
		return prefix + fmt.Sprintf("cannot %s %s: %v", e.Action, e.Dataset, e.Err)
	default:
		return prefix + fmt.Sprintf("%s %s", e.Kind, e.Dataset)
	}
}

// Printer writes one line per event and keeps per-kind totals.
// It is safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	color  bool
	counts map[retention.EventKind]int
}

// NewPrinter returns a Printer writing to w. Color is used only when w is
// a terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		writer: w,
		color:  os.Getenv("NO_COLOR") == "" && writerIsTTY(w),
		counts: make(map[retention.EventKind]int),
	}
}

// Report implements retention.Reporter.
func (p *Printer) Report(e retention.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[e.Kind]++

	line := FormatEvent(e)
	if p.color {
		line = getKindColor(e.Kind) + line + colorReset
	}
	fmt.Fprintln(p.writer, line)
}

// Summary returns a one-line tally such as "2 destroyed, 1 failed".
func (p *Printer) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	failed := 0
	for kind, n := range p.counts {
		if kind.Failed() {
			failed += n
		}
	}

	parts := []struct {
		n     int
		label string
	}{
		{p.counts[retention.EventCreated], "created"},
		{p.counts[retention.EventDestroyed], "destroyed"},
		{p.counts[retention.EventWouldDestroy], "would destroy"},
		{p.counts[retention.EventSkippedNoPolicy] + p.counts[retention.EventSkippedWithinPolicy], "skipped"},
		{failed, "failed"},
	}

	var out []string
	for _, part := range parts {
		if part.n > 0 {
			out = append(out, fmt.Sprintf("%d %s", part.n, part.label))
		}
	}
	if len(out) == 0 {
		return "nothing to do"
	}
	return strings.Join(out, ", ")
}
