// Package output renders zsnap results for the terminal.
//
// This package includes:
//   - One-line descriptions of every create, destroy and skip outcome
//   - A Printer that writes those lines as a retention.Reporter
//   - History tables built from the journal
//
// Tables use plain ASCII columns. ANSI colors are only emitted when the
// destination is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/store"
)

// ANSI color codes for outcome display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderHistoryTable renders journal events, in the order given.
func RenderHistoryTable(events []*store.Event) string {
	if len(events) == 0 {
		return "No history recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-6s %-16s %-20s %-8s %-22s %s\n",
		"Run", "When", "Dataset", "Class", "Result", "Snapshot"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, e := range events {
		kind := retention.EventKind(e.Kind)
		result := fmt.Sprintf("%-22s", formatKind(kind))
		if color := getKindColor(kind); color != "" {
			result = colorize(color, result)
		}

		snapshot := e.Snapshot
		if snapshot == "" {
			snapshot = "—"
		}

		sb.WriteString(fmt.Sprintf("%-6d %-16s %-20s %-8s %s %s\n",
			e.RunID,
			formatRelativeTime(e.Timestamp),
			truncate(e.Dataset, 20),
			e.Class,
			result,
			snapshot))
		if e.Message != "" && kind.Failed() {
			sb.WriteString(fmt.Sprintf("       %s\n", truncate(e.Message, 93)))
		}
	}

	return sb.String()
}

// RenderRunTable renders journal runs, in the order given.
func RenderRunTable(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-6s %-16s %-9s %-7s %-20s %-10s %s\n",
		"Run", "Started", "Source", "Action", "Dataset", "Status", "Policy"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, r := range runs {
		status := formatRunStatus(r)
		padded := fmt.Sprintf("%-10s", status)
		switch status {
		case "failed":
			padded = colorize(colorRed, padded)
		case "ok", "dry-run":
			padded = colorize(colorGreen, padded)
		default:
			padded = colorize(colorYellow, padded)
		}

		sb.WriteString(fmt.Sprintf("%-6d %-16s %-9s %-7s %-20s %s %s\n",
			r.ID,
			formatRelativeTime(r.StartedAt),
			r.Source,
			r.Action,
			truncate(r.Dataset, 20),
			padded,
			r.Policy))
	}

	return sb.String()
}

func formatRunStatus(r *store.Run) string {
	switch {
	case r.FinishedAt.IsZero():
		return "running"
	case r.Failed:
		return "failed"
	case r.DryRun:
		return "dry-run"
	default:
		return "ok"
	}
}

// formatKind returns the table label for an event kind.
func formatKind(kind retention.EventKind) string {
	switch kind {
	case retention.EventCreated:
		return "✓ created"
	case retention.EventDestroyed:
		return "✓ destroyed"
	case retention.EventWouldDestroy:
		return "~ would destroy"
	case retention.EventSkippedNoPolicy:
		return "- no policy"
	case retention.EventSkippedWithinPolicy:
		return "- within policy"
	case retention.EventCreateFailed:
		return "✗ create failed"
	case retention.EventDestroyFailed:
		return "✗ destroy failed"
	case retention.EventListFailed:
		return "✗ list failed"
	case retention.EventPreconditionFailed:
		return "✗ invalid target"
	default:
		return string(kind)
	}
}

// getKindColor returns the ANSI color code for an event kind.
func getKindColor(kind retention.EventKind) string {
	switch {
	case kind.Failed():
		return colorRed
	case kind == retention.EventCreated || kind == retention.EventDestroyed:
		return colorGreen
	case kind == retention.EventWouldDestroy:
		return colorYellow
	default:
		return colorGray
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	case diff < 365*24*time.Hour:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	default:
		years := int(diff.Hours() / 24 / 365)
		if years == 1 {
			return "1 year ago"
		}
		return fmt.Sprintf("%d years ago", years)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
