package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

var (
	journalPath string
	noJournal   bool
	zfsBinary   string

	// RootCmd is the root command for zsnap
	RootCmd = &cobra.Command{
		Use:   "zsnap",
		Short: "Timestamped ZFS snapshots with count-based retention",
		Long: `zsnap creates timestamped ZFS snapshots tagged by retention class
(hourly, daily, monthly, yearly) and prunes the oldest snapshots of a class
once more than the configured number exist.

Snapshots are named <YYYY_MM_DD-HH_MM_SS>-<class>, for example
tank/data@2024_01_01-00_00_00-hourly. Only snapshots following this scheme
are ever counted or destroyed.

Every create and destroy attempt is recorded in a local journal
(~/.zsnap/journal.db) which 'zsnap history' displays.

Note: -h means --hourly. Use --help for help.

Examples:
  # Take an hourly and a daily snapshot, pruning each class afterwards
  zsnap create -h 24 -d 7 -p tank/data

  # Prune hourly snapshots of tank/data and its children down to 24
  zsnap prune -h 24 -r tank/data

  # Preview what a prune would destroy
  zsnap prune -d 7 --dry-run tank/data

  # Run every dataset from a config file on its cron schedule
  zsnap schedule --config /etc/zsnap/config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "zsnap: ZFS snapshot creation and retention")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'zsnap create --help' or 'zsnap prune --help' to get started.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'zsnap --help' for the full reference.")
			_, err := retention.ParseAction("")
			return err
		},
	}
)

func init() {
	// -h is --hourly on the snapshot commands, so help gets no shorthand.
	RootCmd.PersistentFlags().Bool("help", false, "help for zsnap")

	RootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "journal database path (default: ~/.zsnap/journal.db)")
	RootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "do not record runs in the journal")
	RootCmd.PersistentFlags().StringVar(&zfsBinary, "zfs", "", "zfs binary (default: zfs on PATH)")

	RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &retention.ConfigError{Field: "flags", Err: err}
	})

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// SIGINT/SIGTERM by main.
func ExecuteContext(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}

// getJournalPath returns the journal path, using the flag value or default
func getJournalPath() (string, error) {
	if journalPath != "" {
		return journalPath, nil
	}

	dir, err := getStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// getStateDir returns ~/.zsnap, creating it if needed.
func getStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".zsnap")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create zsnap directory: %w", err)
	}
	return dir, nil
}

// getDefaultPIDFile returns the default scheduler PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := getStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "schedule.pid"), nil
}

// getDefaultLogFile returns the default scheduler log file path
func getDefaultLogFile() (string, error) {
	dir, err := getStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "schedule.log"), nil
}

// IsUsageError reports whether err came from bad flags, arguments or
// configuration rather than from a snapshot operation.
func IsUsageError(err error) bool {
	var cfgErr *retention.ConfigError
	if errors.As(err, &cfgErr) {
		return true
	}
	return strings.HasPrefix(err.Error(), "unknown command")
}
