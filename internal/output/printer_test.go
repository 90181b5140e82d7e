package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name  string
		event retention.Event
		want  string
	}{
		{
			name: "created",
			event: retention.Event{
				Action: retention.ActionCreate, Dataset: "tank/data", Class: retention.Daily,
				Kind: retention.EventCreated, Snapshot: "tank/data@2024_01_01-00_00_00-daily",
			},
			want: "[daily] created tank/data@2024_01_01-00_00_00-daily",
		},
		{
			name: "destroy failed",
			event: retention.Event{
				Action: retention.ActionPrune, Dataset: "tank/data", Class: retention.Hourly,
				Kind: retention.EventDestroyFailed, Snapshot: "tank/data@old-hourly", Err: errors.New("dataset is busy"),
			},
			want: "[hourly] failed to destroy tank/data@old-hourly: dataset is busy",
		},
		{
			name: "skipped without policy",
			event: retention.Event{
				Action: retention.ActionPrune, Dataset: "tank/data", Class: retention.Monthly,
				Kind: retention.EventSkippedNoPolicy,
			},
			want: "[monthly] skipped tank/data: no retention policy",
		},
		{
			name: "skipped within policy",
			event: retention.Event{
				Action: retention.ActionPrune, Dataset: "tank/data", Class: retention.Yearly,
				Kind: retention.EventSkippedWithinPolicy, Total: 2, Retain: retention.Keep(5),
			},
			want: "[yearly] skipped tank/data: 2 snapshots, retaining 5",
		},
		{
			name: "would destroy",
			event: retention.Event{
				Action: retention.ActionPrune, Dataset: "tank/data", Class: retention.Hourly,
				Kind: retention.EventWouldDestroy, Snapshot: "tank/data@old-hourly",
			},
			want: "[hourly] would destroy tank/data@old-hourly",
		},
		{
			name: "precondition failed",
			event: retention.Event{
				Action: retention.ActionCreate, Dataset: "tank/missing", Class: retention.Daily,
				Kind: retention.EventPreconditionFailed, Err: retention.ErrInvalidDataset,
			},
			want: "[daily] cannot create tank/missing: " + retention.ErrInvalidDataset.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEvent(tt.event); got != tt.want {
				t.Errorf("FormatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinterWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Report(retention.Event{Class: retention.Hourly, Kind: retention.EventDestroyed, Snapshot: "tank/data@a-hourly"})
	p.Report(retention.Event{Class: retention.Hourly, Kind: retention.EventDestroyFailed, Snapshot: "tank/data@b-hourly", Err: errors.New("busy")})
	p.Report(retention.Event{Class: retention.Daily, Dataset: "tank/data", Kind: retention.EventSkippedNoPolicy})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "\033[") {
		t.Error("expected no color codes when writing to a buffer")
	}

	if got, want := p.Summary(), "1 destroyed, 1 skipped, 1 failed"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestPrinterSummaryEmpty(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	if got := p.Summary(); got != "nothing to do" {
		t.Errorf("Summary() = %q, want %q", got, "nothing to do")
	}
}

func TestWriterIsTTYWithBuffer(t *testing.T) {
	if writerIsTTY(&bytes.Buffer{}) {
		t.Error("a bytes.Buffer is never a terminal")
	}
}
