package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/config"
	"github.com/blackwell-systems/zsnap/internal/output"
	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/store"
)

var (
	runConfigPath string
	runDataset    string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Apply every dataset in a config file once",
		Long: `Load the configuration file and apply each dataset's action (create or
prune) with its retention policy, one dataset after another.

This is the one-shot counterpart of 'zsnap schedule' and is suited to
running from an external scheduler such as a systemd timer. Datasets are
independent: a failure on one does not stop the others.`,
		Example: `  zsnap run --config /etc/zsnap/config.yaml
  zsnap run --config /etc/zsnap/config.yaml --dataset tank/data`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "configuration file (default: ~/.config/zsnap/config.yaml)")
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "only apply this dataset")

	RootCmd.AddCommand(runCmd)
}

// loadConfig resolves the --config flag and loads the file.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to locate config file: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// effectiveJournalPath prefers the --journal flag over the config file.
func effectiveJournalPath(cfg *config.Config) string {
	if journalPath != "" {
		return journalPath
	}
	return cfg.Journal
}

// effectiveZFSBinary prefers the --zfs flag over the config file.
func effectiveZFSBinary(cfg *config.Config) string {
	if zfsBinary != "" {
		return zfsBinary
	}
	return cfg.ZFS
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	datasets := cfg.Datasets
	if runDataset != "" {
		datasets = nil
		for _, ds := range cfg.Datasets {
			if ds.Name == runDataset {
				datasets = append(datasets, ds)
			}
		}
		if len(datasets) == 0 {
			return &retention.ConfigError{Field: "dataset", Err: fmt.Errorf("%s is not in the config file", runDataset)}
		}
	}

	if err := checkPrivilege(); err != nil {
		return err
	}

	journal, err := openJournal(effectiveJournalPath(cfg))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: journal disabled: %v\n", err)
		journal = nil
	}
	if journal != nil {
		defer journal.Close()
	}

	snapshots := newSnapshotStore(effectiveZFSBinary(cfg))
	printer := output.NewPrinter(cmd.OutOrStdout())

	failed := false
	for _, ds := range datasets {
		if cmd.Context().Err() != nil {
			break
		}

		// Validated by config.Load.
		action, _ := ds.ParsedAction()
		policy, _ := ds.Policy()

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", action, ds.Name, policy)

		jr := startJournalRun(journal, cmd.ErrOrStderr(), &store.Run{
			StartedAt: time.Now(),
			Source:    "run",
			Action:    string(action),
			Dataset:   ds.Name,
			Policy:    policy.String(),
			Recursive: policy.Recursive(),
		})

		d := newDispatcher(snapshots, false, printer, jr.reporter())
		dsFailed := d.Run(cmd.Context(), action, ds.Name, policy)
		jr.finish(dsFailed)
		if dsFailed {
			failed = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", printer.Summary())

	if cmd.Context().Err() != nil {
		return cmd.Context().Err()
	}
	if failed {
		return ErrOperationsFailed
	}
	return nil
}
