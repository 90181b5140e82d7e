package retention

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the time layout embedded at the start of every
// snapshot name. It sorts lexicographically in creation order.
const TimestampLayout = "2006_01_02-15_04_05"

// Snapshot is a parsed snapshot belonging to a dataset.
type Snapshot struct {
	ID        string // fully qualified, e.g. "tank/data@2024_01_01-00_00_00-hourly"
	Dataset   string
	Name      string // part after "@"
	CreatedAt time.Time
	Class     Class
}

// SnapshotName returns the name for a snapshot of class c taken at t.
func SnapshotName(t time.Time, c Class) string {
	return t.Format(TimestampLayout) + "-" + string(c)
}

// ParseName extracts the creation time and class from a snapshot name.
// Names not produced by SnapshotName are rejected.
func ParseName(name string) (time.Time, Class, error) {
	if len(name) < len(TimestampLayout)+2 || name[len(TimestampLayout)] != '-' {
		return time.Time{}, "", fmt.Errorf("snapshot name %q: missing timestamp prefix", name)
	}

	ts, err := time.ParseInLocation(TimestampLayout, name[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("snapshot name %q: %w", name, err)
	}

	class := Class(name[len(TimestampLayout)+1:])
	if !class.Valid() {
		return time.Time{}, "", fmt.Errorf("snapshot name %q: %w", name, ErrInvalidClass)
	}

	return ts, class, nil
}

// SplitID splits "dataset@name" into its parts. Bare names, as returned by
// stores that omit the dataset prefix, are attributed to dataset.
func SplitID(dataset, id string) (string, string) {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return dataset, id
}

// ParseSnapshots classifies raw listing output for dataset, preserving the
// store's order. Snapshots of other datasets and names that do not follow
// the naming scheme are dropped.
func ParseSnapshots(dataset string, ids []string) []Snapshot {
	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		ds, name := SplitID(dataset, strings.TrimSpace(id))
		if ds != dataset {
			continue
		}
		createdAt, class, err := ParseName(name)
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			ID:        ds + "@" + name,
			Dataset:   ds,
			Name:      name,
			CreatedAt: createdAt,
			Class:     class,
		})
	}
	return snaps
}
