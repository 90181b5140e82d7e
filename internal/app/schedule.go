package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/config"
	"github.com/blackwell-systems/zsnap/internal/retention"
	"github.com/blackwell-systems/zsnap/internal/scheduler"
	"github.com/blackwell-systems/zsnap/internal/store"
)

var (
	scheduleConfigPath  string
	scheduleDaemon      bool
	scheduleDaemonChild bool
	schedulePIDFile     string
	scheduleLogFile     string
	scheduleStop        bool
	scheduleList        bool
	scheduleVerbose     bool

	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Create and prune snapshots on cron schedules",
		Long: `Run the datasets of a configuration file on their cron schedules.

Every retention class of every dataset gets its own schedule (by default
hourly at minute 0, daily at midnight, monthly on the 1st, yearly on
January 1st). At each activation a snapshot of that class is created and,
unless the dataset sets 'prune: false', the class is pruned right after.

Runs never overlap. The configuration file is reloaded automatically when it
changes; an invalid edit is logged and the previous schedule stays active.

Schedule modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon
  • List: Print the jobs and their next activation, then exit`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  zsnap schedule --config /etc/zsnap/config.yaml

  # Run as background daemon
  zsnap schedule --config /etc/zsnap/config.yaml --daemon

  # Show upcoming runs
  zsnap schedule --config /etc/zsnap/config.yaml --list

  # Stop running daemon
  zsnap schedule --stop`,
		Args: cobra.NoArgs,
		RunE: runSchedule,
	}
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleConfigPath, "config", "", "configuration file (default: ~/.config/zsnap/config.yaml)")
	scheduleCmd.Flags().BoolVar(&scheduleDaemon, "daemon", false, "run as background daemon")
	scheduleCmd.Flags().BoolVar(&scheduleDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	scheduleCmd.Flags().StringVar(&schedulePIDFile, "pid-file", "", "PID file path (default: ~/.zsnap/schedule.pid)")
	scheduleCmd.Flags().StringVar(&scheduleLogFile, "log-file", "", "log file path (default: ~/.zsnap/schedule.log)")
	scheduleCmd.Flags().BoolVar(&scheduleStop, "stop", false, "stop running daemon")
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list scheduled jobs and exit")
	scheduleCmd.Flags().BoolVarP(&scheduleVerbose, "verbose", "v", false, "log at debug level")

	// Hide the internal daemon-child flag from help
	scheduleCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if schedulePIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		schedulePIDFile = defaultPID
	}

	if scheduleStop {
		if err := scheduler.StopDaemon(schedulePIDFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Scheduler stopped.")
		return nil
	}

	cfg, cfgPath, err := loadConfig(scheduleConfigPath)
	if err != nil {
		return err
	}
	jobs, err := scheduler.JobsFromConfig(cfg)
	if err != nil {
		return err
	}

	if scheduleList {
		return listSchedule(cmd.OutOrStdout(), jobs)
	}

	if err := checkPrivilege(); err != nil {
		return err
	}

	if scheduleDaemon {
		return startScheduleDaemon(cmd, cfgPath)
	}

	return runScheduler(cmd.Context(), cmd.ErrOrStderr(), cfg, cfgPath, jobs)
}

func listSchedule(w io.Writer, jobs []scheduler.Job) error {
	s := scheduler.New(func(context.Context, scheduler.Job) bool { return false })
	if err := s.Apply(jobs); err != nil {
		return err
	}

	fmt.Fprintf(w, "%-24s %-8s %-16s %-20s %s\n", "Dataset", "Class", "Schedule", "Next Run", "Policy")
	for _, e := range s.Entries() {
		fmt.Fprintf(w, "%-24s %-8s %-16s %-20s %s\n",
			e.Job.Dataset,
			e.Job.Class,
			e.Job.Spec,
			e.Next.Format("2006-01-02 15:04:05"),
			e.Job.Policy)
	}
	return nil
}

func startScheduleDaemon(cmd *cobra.Command, cfgPath string) error {
	if scheduleLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		scheduleLogFile = defaultLog
	}

	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	args := []string{"schedule", "--daemon-child", "--config", abs, "--pid-file", schedulePIDFile}
	if journalPath != "" {
		args = append(args, "--journal", journalPath)
	}
	if noJournal {
		args = append(args, "--no-journal")
	}
	if zfsBinary != "" {
		args = append(args, "--zfs", zfsBinary)
	}
	if scheduleVerbose {
		args = append(args, "--verbose")
	}

	pid, err := scheduler.StartDaemon(args, schedulePIDFile, scheduleLogFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduler started (PID %d)\n", pid)
	fmt.Fprintf(cmd.OutOrStdout(), "  PID file: %s\n", schedulePIDFile)
	fmt.Fprintf(cmd.OutOrStdout(), "  Log file: %s\n", scheduleLogFile)
	fmt.Fprintln(cmd.OutOrStdout(), "\nStop it with 'zsnap schedule --stop'.")
	return nil
}

// scheduleRunner executes scheduler jobs against the snapshot store,
// journaling each one as its own run. The scheduler never calls run
// concurrently.
type scheduleRunner struct {
	snapshots retention.Store
	journal   *store.Store
	log       *slog.Logger
}

func (r *scheduleRunner) run(ctx context.Context, job scheduler.Job) bool {
	var rec *store.Recorder
	if r.journal != nil {
		var err error
		rec, err = r.journal.StartRecorder(&store.Run{
			StartedAt: time.Now(),
			Source:    "schedule",
			Action:    string(retention.ActionCreate),
			Dataset:   job.Dataset,
			Policy:    job.Policy.String(),
			Recursive: job.Policy.Recursive(),
		}, func(err error) {
			r.log.Warn("journal write failed", "error", err)
		})
		if err != nil {
			r.log.Warn("journal write failed", "error", err)
			rec = nil
		}
	}

	reporters := []retention.Reporter{logReporter{log: r.log}}
	if rec != nil {
		reporters = append(reporters, rec)
	}

	d := newDispatcher(r.snapshots, false, reporters...)
	failed := d.RunClass(ctx, retention.ActionCreate, job.Dataset, job.Class, job.Policy)
	if rec != nil {
		rec.Finish(failed)
	}
	return failed
}

func runScheduler(ctx context.Context, logOut io.Writer, cfg *config.Config, cfgPath string, jobs []scheduler.Job) error {
	log, err := newLogger(logOut, cfg.Logging.Level, cfg.Logging.Format, scheduleVerbose)
	if err != nil {
		return err
	}

	if scheduleDaemonChild {
		if err := scheduler.WritePIDFile(schedulePIDFile, os.Getpid()); err != nil {
			return err
		}
		defer scheduler.RemovePIDFile(schedulePIDFile)
	}

	journal, err := openJournal(effectiveJournalPath(cfg))
	if err != nil {
		log.Warn("journal disabled", "error", err)
		journal = nil
	}
	if journal != nil {
		defer journal.Close()
	}

	runner := &scheduleRunner{
		snapshots: newSnapshotStore(effectiveZFSBinary(cfg)),
		journal:   journal,
		log:       log,
	}

	opts := []scheduler.Option{scheduler.WithLogger(log)}
	if journal != nil && cfg.JournalMaxAge > 0 {
		maxAge := cfg.JournalMaxAge
		opts = append(opts, scheduler.WithMaintenance("@daily", func(ctx context.Context) {
			n, err := journal.DeleteRunsBefore(time.Now().Add(-maxAge))
			if err != nil {
				log.Warn("journal cleanup failed", "error", err)
				return
			}
			log.Info("journal cleaned up", "runs", n, "maxAge", maxAge)
		}))
	}

	s := scheduler.New(runner.run, opts...)
	if err := s.Apply(jobs); err != nil {
		return err
	}
	for _, e := range s.Entries() {
		log.Info("scheduled", "dataset", e.Job.Dataset, "class", e.Job.Class, "spec", e.Job.Spec, "next", e.Next.Format(time.RFC3339))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := scheduler.WatchConfig(ctx, cfgPath, scheduler.DefaultDebounce, log, func() error {
			next, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			nextJobs, err := scheduler.JobsFromConfig(next)
			if err != nil {
				return err
			}
			if next.Journal != cfg.Journal || next.ZFS != cfg.ZFS {
				log.Warn("journal and zfs settings take effect after a restart")
			}
			return s.Apply(nextJobs)
		})
		if err != nil {
			log.Error("config watcher stopped", "error", err)
		}
	}()

	log.Info("scheduler started", "config", cfgPath, "jobs", len(jobs))
	err = s.Run(ctx)
	cancel()
	wg.Wait()
	log.Info("scheduler stopped")
	return err
}
