package app

import (
	"os"
	"strings"
	"testing"
)

func TestHistoryWithoutJournal(t *testing.T) {
	path := tempJournal(t)

	out, _, err := executeCommand(t, "history", "--journal", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No history recorded (no journal at "+path+")") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHistoryEmptyJournal(t *testing.T) {
	path := tempJournal(t)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, _, err := executeCommand(t, "history", "--journal", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No history recorded.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHistoryShowsEventsAndRuns(t *testing.T) {
	snapshots := newMemStore("tank/data")
	names := hourly(3)
	snapshots.add("tank/data", names...)
	useStore(t, snapshots)
	path := tempJournal(t)

	if _, _, err := executeCommand(t, "prune", "-h", "2", "--journal", path, "tank/data"); err != nil {
		t.Fatalf("prune: %v", err)
	}

	out, _, err := executeCommand(t, "history", "--journal", path, "--dataset", "tank/data")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "tank/data@"+names[0]) {
		t.Errorf("expected destroyed snapshot in history, got: %s", out)
	}

	out, _, err = executeCommand(t, "history", "--journal", path, "--runs")
	if err != nil {
		t.Fatalf("history --runs: %v", err)
	}
	if !strings.Contains(out, "prune") || !strings.Contains(out, "hourly=2") {
		t.Errorf("expected run row, got: %s", out)
	}
}

func TestHistoryUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"history", "--limit", "-1", "--journal", tempJournal(t)},
		{"history", "--no-journal"},
	} {
		if _, _, err := executeCommand(t, args...); !isConfigError(err) {
			t.Errorf("%v: expected ConfigError, got %v", args, err)
		}
	}
}
