package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blackwell-systems/zsnap/internal/output"
	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/store"
)

var (
	hourlyCount  retention.Count
	dailyCount   retention.Count
	monthlyCount retention.Count
	yearlyCount  retention.Count

	snapshotRecursive bool
	createPrune       bool
	pruneDryRun       bool

	createCmd = &cobra.Command{
		Use:   "create [flags] <dataset>",
		Short: "Create a snapshot for every configured retention class",
		Long: `Create one snapshot of the dataset for each retention class given a
count. With --prune, each class is pruned down to its count right after its
snapshot is taken.

Classes are processed independently in the order hourly, daily, monthly,
yearly. A failure in one class does not stop the others; the command exits
non-zero if any class failed.`,
		Example: `  # Hourly snapshot, keep the newest 24
  zsnap create -h 24 -p tank/data

  # Daily and monthly snapshots of tank/data and all children
  zsnap create -d 7 -m 12 -p -r tank/data`,
		Args: exactlyOneDataset,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotAction(cmd, retention.ActionCreate, args[0])
		},
	}

	pruneCmd = &cobra.Command{
		Use:   "prune [flags] <dataset>",
		Short: "Destroy the oldest snapshots beyond each class's count",
		Long: `For every retention class given a count, destroy the oldest snapshots of
that class until only the newest <count> remain. Classes without a count
are left untouched.

A snapshot that cannot be destroyed (held or busy) is reported and the
remaining candidates are still attempted.`,
		Example: `  # Keep the newest 24 hourly and 7 daily snapshots
  zsnap prune -h 24 -d 7 tank/data

  # Show what would be destroyed without destroying anything
  zsnap prune -y 5 --dry-run tank/data`,
		Args: exactlyOneDataset,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotAction(cmd, retention.ActionPrune, args[0])
		},
	}
)

func addCountFlags(fs *pflag.FlagSet) {
	fs.VarP(countValue{&hourlyCount}, "hourly", "h", "number of hourly snapshots to keep")
	fs.VarP(countValue{&dailyCount}, "daily", "d", "number of daily snapshots to keep")
	fs.VarP(countValue{&monthlyCount}, "monthly", "m", "number of monthly snapshots to keep")
	fs.VarP(countValue{&yearlyCount}, "yearly", "y", "number of yearly snapshots to keep")
	fs.BoolVarP(&snapshotRecursive, "recursive", "r", false, "create and destroy snapshots of all descendant datasets")
}

func init() {
	addCountFlags(createCmd.Flags())
	createCmd.Flags().BoolVarP(&createPrune, "prune", "p", false, "prune each class right after creating its snapshot")

	addCountFlags(pruneCmd.Flags())
	pruneCmd.Flags().BoolVarP(&pruneDryRun, "dry-run", "n", false, "report what would be destroyed without destroying it")

	RootCmd.AddCommand(createCmd)
	RootCmd.AddCommand(pruneCmd)
}

// policyFromFlags builds the retention policy from the count flags.
func policyFromFlags(action retention.Action) (retention.Policy, error) {
	counts := make(map[retention.Class]int)
	for class, c := range map[retention.Class]retention.Count{
		retention.Hourly:  hourlyCount,
		retention.Daily:   dailyCount,
		retention.Monthly: monthlyCount,
		retention.Yearly:  yearlyCount,
	} {
		if n, ok := c.Value(); ok {
			counts[class] = n
		}
	}

	policy, err := retention.NewPolicy(counts,
		retention.WithRecursive(snapshotRecursive),
		retention.WithPruneAfterCreate(action == retention.ActionCreate && createPrune))
	if err != nil {
		return retention.Policy{}, err
	}
	if err := policy.Validate(); err != nil {
		return retention.Policy{}, err
	}
	return policy, nil
}

func runSnapshotAction(cmd *cobra.Command, action retention.Action, dataset string) error {
	policy, err := policyFromFlags(action)
	if err != nil {
		return err
	}
	if err := checkPrivilege(); err != nil {
		return err
	}

	dryRun := action == retention.ActionPrune && pruneDryRun

	journal, err := openJournal(journalPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: journal disabled: %v\n", err)
		journal = nil
	}
	if journal != nil {
		defer journal.Close()
	}

	jr := startJournalRun(journal, cmd.ErrOrStderr(), &store.Run{
		StartedAt: time.Now(),
		Source:    "cli",
		Action:    string(action),
		Dataset:   dataset,
		Policy:    policy.String(),
		Recursive: policy.Recursive(),
		DryRun:    dryRun,
	})

	printer := output.NewPrinter(cmd.OutOrStdout())
	d := newDispatcher(newSnapshotStore(zfsBinary), dryRun, printer, jr.reporter())

	failed := d.Run(cmd.Context(), action, dataset, policy)
	jr.finish(failed)

	if failed {
		return ErrOperationsFailed
	}
	return nil
}
