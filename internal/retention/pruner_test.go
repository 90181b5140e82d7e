package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func hourlyNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("2024_01_01-%02d_00_00-hourly", i)
	}
	return names
}

func TestSelectExpired(t *testing.T) {
	snaps := ParseSnapshots("tank/data", []string{
		"tank/data@2024_01_01-00_00_00-hourly",
		"tank/data@2024_01_01-00_00_00-daily",
		"tank/data@2024_01_01-01_00_00-hourly",
		"tank/data@2024_01_01-02_00_00-hourly",
		"tank/data@2024_01_02-00_00_00-daily",
	})

	tests := []struct {
		name  string
		class Class
		keep  int
		want  []string
	}{
		{"keep more than exist", Hourly, 5, nil},
		{"keep exactly total", Hourly, 3, nil},
		{"keep one", Hourly, 1, []string{"2024_01_01-00_00_00-hourly", "2024_01_01-01_00_00-hourly"}},
		{"keep zero", Daily, 0, []string{"2024_01_01-00_00_00-daily", "2024_01_02-00_00_00-daily"}},
		{"class with no snapshots", Monthly, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectExpired(snaps, tt.class, tt.keep)
			var names []string
			for _, s := range got {
				names = append(names, s.Name)
			}
			if !equalStrings(names, tt.want) {
				t.Errorf("SelectExpired() = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestPruneDestroysOldestExcess(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data", hourlyNames(6)...)

	report, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(4), false)
	if err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}

	wantDestroyed := []string{
		"tank/data@2024_01_01-00_00_00-hourly",
		"tank/data@2024_01_01-01_00_00-hourly",
	}
	if !equalStrings(store.destroyCalls, wantDestroyed) {
		t.Errorf("expected destroy calls %v, got %v", wantDestroyed, store.destroyCalls)
	}

	wantRemaining := hourlyNames(6)[2:]
	if got := store.remaining("tank/data", Hourly); !equalStrings(got, wantRemaining) {
		t.Errorf("expected remaining %v, got %v", wantRemaining, got)
	}

	if report.Status != StatusPruned {
		t.Errorf("expected status pruned, got %q", report.Status)
	}
	if report.Total != 6 {
		t.Errorf("expected total 6, got %d", report.Total)
	}
	if report.Destroyed() != 2 {
		t.Errorf("expected 2 destroyed, got %d", report.Destroyed())
	}
	if report.Failed() {
		t.Error("expected report not to be failed")
	}
}

func TestPruneRetainsMostRecent(t *testing.T) {
	for total := 0; total <= 8; total++ {
		for keep := 0; keep <= 8; keep++ {
			store := newFakeStore("tank/data")
			names := hourlyNames(total)
			store.add("tank/data", names...)

			if _, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(keep), false); err != nil {
				t.Fatalf("total=%d keep=%d: unexpected error: %v", total, keep, err)
			}

			want := keep
			if total < keep {
				want = total
			}
			got := store.remaining("tank/data", Hourly)
			if len(got) != want {
				t.Errorf("total=%d keep=%d: expected %d remaining, got %d", total, keep, want, len(got))
			}
			if !equalStrings(got, names[total-len(got):]) {
				t.Errorf("total=%d keep=%d: expected newest %v to remain, got %v", total, keep, names[total-len(got):], got)
			}
		}
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data", hourlyNames(7)...)
	pruner := NewPruner(store)

	if _, err := pruner.Prune(context.Background(), "tank/data", Hourly, Keep(3), false); err != nil {
		t.Fatalf("first Prune() unexpected error: %v", err)
	}
	first := len(store.destroyCalls)

	report, err := pruner.Prune(context.Background(), "tank/data", Hourly, Keep(3), false)
	if err != nil {
		t.Fatalf("second Prune() unexpected error: %v", err)
	}
	if len(store.destroyCalls) != first {
		t.Errorf("expected no destroy calls on second run, got %d more", len(store.destroyCalls)-first)
	}
	if report.Status != StatusSkippedWithinPolicy {
		t.Errorf("expected status skipped-within-policy, got %q", report.Status)
	}
}

func TestPruneWithoutCountIsNoop(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data", hourlyNames(5)...)

	report, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Count{}, false)
	if err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}
	if report.Status != StatusSkippedNoPolicy {
		t.Errorf("expected status skipped-no-policy, got %q", report.Status)
	}
	if len(store.destroyCalls) != 0 || store.listCalls != 0 {
		t.Errorf("expected no store calls, got %d list and %d destroy", store.listCalls, len(store.destroyCalls))
	}
	if got := store.remaining("tank/data", Hourly); len(got) != 5 {
		t.Errorf("expected 5 snapshots to remain, got %d", len(got))
	}
}

func TestPruneWithinPolicy(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data", hourlyNames(3)...)

	report, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(3), false)
	if err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}
	if report.Status != StatusSkippedWithinPolicy {
		t.Errorf("expected status skipped-within-policy, got %q", report.Status)
	}
	if len(store.destroyCalls) != 0 {
		t.Errorf("expected no destroy calls, got %v", store.destroyCalls)
	}
}

func TestPruneOnlyTouchesOwnClass(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data",
		"2024_01_01-00_00_00-daily",
		"2024_01_01-00_00_00-hourly",
		"2024_01_01-01_00_00-hourly",
		"manual-snapshot-hourly",
		"2024_01_02-00_00_00-daily",
	)

	if _, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(0), false); err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}

	want := []string{
		"tank/data@2024_01_01-00_00_00-hourly",
		"tank/data@2024_01_01-01_00_00-hourly",
	}
	if !equalStrings(store.destroyCalls, want) {
		t.Errorf("expected destroy calls %v, got %v", want, store.destroyCalls)
	}
	if got := store.remaining("tank/data", Daily); len(got) != 2 {
		t.Errorf("expected daily snapshots untouched, got %v", got)
	}
}

func TestPrunePartialFailure(t *testing.T) {
	store := newFakeStore("tank/data")
	names := hourlyNames(5)
	store.add("tank/data", names...)
	store.held["tank/data@"+names[1]] = true

	report, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(1), false)
	if !errors.Is(err, ErrPartialPrune) {
		t.Fatalf("expected ErrPartialPrune, got %v", err)
	}
	if report == nil {
		t.Fatal("expected a report alongside the error")
	}

	if len(store.destroyCalls) != 4 {
		t.Errorf("expected all 4 candidates to be attempted, got %v", store.destroyCalls)
	}
	if report.Destroyed() != 3 {
		t.Errorf("expected 3 destroyed, got %d", report.Destroyed())
	}

	failures := report.Failures()
	if len(failures) != 1 || failures[0].Snapshot.Name != names[1] {
		t.Fatalf("expected only %s to fail, got %+v", names[1], failures)
	}
	var storeErr *StoreError
	if !errors.As(failures[0].Err, &storeErr) || storeErr.Op != "destroy" {
		t.Errorf("expected destroy StoreError, got %v", failures[0].Err)
	}

	want := []string{names[1], names[4]}
	if got := store.remaining("tank/data", Hourly); !equalStrings(got, want) {
		t.Errorf("expected remaining %v, got %v", want, got)
	}
}

func TestPruneRecursiveUsesListedID(t *testing.T) {
	store := newFakeStore("tank/data")
	names := hourlyNames(5)
	store.add("tank/data", names...)
	store.held["tank/data@"+names[0]] = true

	report, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(2), true)
	if !errors.Is(err, ErrPartialPrune) {
		t.Fatalf("expected ErrPartialPrune, got %v", err)
	}
	if report.Destroyed() != 2 || len(report.Failures()) != 1 {
		t.Errorf("expected 2 destroyed and 1 failed, got %d and %d", report.Destroyed(), len(report.Failures()))
	}
	for i, recursive := range store.recursive {
		if !recursive {
			t.Errorf("destroy call %d was not recursive", i)
		}
	}
	for i, id := range store.destroyCalls {
		if id != "tank/data@"+names[i] {
			t.Errorf("destroy call %d: expected %q, got %q", i, "tank/data@"+names[i], id)
		}
	}
}

func TestPruneNonRecursiveWithBareListing(t *testing.T) {
	store := newFakeStore("tank/data")
	store.bare = true
	store.add("tank/data", hourlyNames(3)...)

	if _, err := NewPruner(store).Prune(context.Background(), "tank/data", Hourly, Keep(2), false); err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}

	want := []string{"tank/data@2024_01_01-00_00_00-hourly"}
	if !equalStrings(store.destroyCalls, want) {
		t.Errorf("expected destroy calls %v, got %v", want, store.destroyCalls)
	}
}

func TestPruneDryRun(t *testing.T) {
	store := newFakeStore("tank/data")
	store.add("tank/data", hourlyNames(4)...)

	report, err := NewPruner(store).WithDryRun(true).Prune(context.Background(), "tank/data", Hourly, Keep(1), false)
	if err != nil {
		t.Fatalf("Prune() unexpected error: %v", err)
	}
	if len(store.destroyCalls) != 0 {
		t.Errorf("expected no destroy calls in dry-run, got %v", store.destroyCalls)
	}
	if len(report.Outcomes) != 3 || !report.DryRun {
		t.Errorf("expected 3 dry-run outcomes, got %d (dryRun=%v)", len(report.Outcomes), report.DryRun)
	}
	if report.Destroyed() != 0 {
		t.Errorf("expected 0 destroyed, got %d", report.Destroyed())
	}
}

func TestPrunePreconditions(t *testing.T) {
	store := newFakeStore("tank/data")

	tests := []struct {
		name    string
		dataset string
		class   Class
		want    error
	}{
		{"missing dataset", "tank/missing", Hourly, ErrInvalidDataset},
		{"empty dataset", "", Hourly, ErrInvalidDataset},
		{"snapshot instead of dataset", "tank/data@snap", Hourly, ErrInvalidDataset},
		{"empty class", "tank/data", Class(""), ErrInvalidClass},
		{"unknown class", "tank/data", Class("weekly"), ErrInvalidClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := NewPruner(store).Prune(context.Background(), tt.dataset, tt.class, Keep(1), false)
			if report != nil {
				t.Errorf("expected nil report, got %+v", report)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var pe *PreconditionError
			if !errors.As(err, &pe) {
				t.Errorf("expected PreconditionError, got %T", err)
			}
		})
	}
}

func TestPruneListFailure(t *testing.T) {
	store := newFakeStore("tank/data")
	store.listErr = errors.New("pool is suspended")

	_, err := NewPruner(store).Prune(context.Background(), "tank/data", Daily, Keep(1), false)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}
