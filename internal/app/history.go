package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/output"
	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/store"
)

var (
	historyDataset string
	historyLimit   int
	historyRuns    bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recorded create and destroy attempts",
		Long: `Display the journal of snapshot operations, newest first.

By default every recorded event is listed: snapshots created and destroyed,
classes skipped, and failures with their error message. With --runs one
line per invocation is shown instead.`,
		Example: `  zsnap history
  zsnap history --dataset tank/data --limit 20
  zsnap history --runs`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().StringVar(&historyDataset, "dataset", "", "only show this dataset")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of rows (0 for all)")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "show one row per run")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 0 {
		return &retention.ConfigError{Field: "limit", Err: fmt.Errorf("must be non-negative, got %d", historyLimit)}
	}
	if noJournal {
		return &retention.ConfigError{Field: "flags", Err: errors.New("--no-journal cannot be used with history")}
	}

	path, err := getJournalPath()
	if err != nil {
		return fmt.Errorf("failed to get journal path: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "No history recorded (no journal at %s).\n", path)
		return nil
	}

	st, err := store.New(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if historyRuns {
		runs, err := st.ListRuns(historyDataset, historyLimit)
		if err != nil {
			return historyError(cmd, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderRunTable(runs))
		return nil
	}

	events, err := st.ListEvents(historyDataset, historyLimit)
	if err != nil {
		return historyError(cmd, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderHistoryTable(events))
	return nil
}

func historyError(cmd *cobra.Command, err error) error {
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintln(cmd.OutOrStdout(), "No history recorded.")
		return nil
	}
	return err
}
