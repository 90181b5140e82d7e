package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zsnap/internal/config"
	"github.com/blackwell-systems/zsnap/internal/scheduler"
	"github.com/blackwell-systems/zsnap/internal/store"
	"github.com/blackwell-systems/zsnap/internal/zfs"
)

var (
	doctorConfigPath string

	// Replaced in tests.
	lookPath = exec.LookPath
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your zsnap installation.

Checks:
  • The zfs command is available
  • zsnap runs with enough privilege
  • The config file is valid and every dataset exists
  • The journal is accessible
  • The scheduler daemon is running`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorConfigPath, "config", "", "configuration file (default: ~/.config/zsnap/config.yaml)")

	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running zsnap diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: zfs binary
	binary := zfsBinary
	if binary == "" {
		binary = zfs.DefaultBinary
	}
	if resolved, err := lookPath(binary); err != nil {
		fmt.Fprintln(out, "✗ zfs command not found:", binary)
		fmt.Fprintln(out, "  Action: install ZFS or pass --zfs /path/to/zfs")
		criticalIssues++
	} else {
		fmt.Fprintln(out, "✓ zfs command found:", resolved)
	}

	// Check 2: privilege
	if err := checkPrivilege(); err != nil {
		fmt.Fprintln(out, "✗ Not running as root")
		fmt.Fprintf(out, "  Action: run with sudo, or delegate with 'zfs allow' and set %s=1\n", skipPrivilegeEnv)
		criticalIssues++
	} else if os.Getenv(skipPrivilegeEnv) == "1" {
		fmt.Fprintln(out, "⚠ Privilege check skipped; zfs permissions must be delegated")
		warningIssues++
	} else {
		fmt.Fprintln(out, "✓ Running as root")
	}

	// Check 3: config file and datasets
	critical, warnings := checkDoctorConfig(cmd, out, criticalIssues == 0)
	criticalIssues += critical
	warningIssues += warnings

	// Check 4: journal
	if noJournal {
		fmt.Fprintln(out, "⚠ Journal disabled (--no-journal)")
		warningIssues++
	} else if path, err := getJournalPath(); err != nil {
		fmt.Fprintln(out, "⚠ Journal path error:", err)
		warningIssues++
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "⚠ No journal yet at:", path)
		fmt.Fprintln(out, "  This is normal before the first create or prune")
		warningIssues++
	} else if st, err := store.New(path); err != nil {
		fmt.Fprintln(out, "✗ Cannot open journal:", err)
		criticalIssues++
	} else {
		count, err := st.GetEventCount()
		st.Close()
		switch {
		case errors.Is(err, store.ErrNotInitialized):
			fmt.Fprintln(out, "⚠ Journal exists but holds no history:", path)
			warningIssues++
		case err != nil:
			fmt.Fprintln(out, "✗ Cannot read journal:", err)
			criticalIssues++
		default:
			fmt.Fprintf(out, "✓ Journal accessible (%d events recorded)\n", count)
		}
	}

	// Check 5: scheduler daemon, warning only
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		fmt.Fprintln(out, "⚠ Failed to get PID file path:", err)
		warningIssues++
	} else if running, err := scheduler.IsDaemonRunning(pidFile); err != nil {
		fmt.Fprintln(out, "⚠ Failed to check scheduler status:", err)
		warningIssues++
	} else if !running {
		fmt.Fprintln(out, "⚠ Scheduler daemon not running")
		fmt.Fprintln(out, "  Action: run 'zsnap schedule --daemon', or call 'zsnap run' from cron or a systemd timer")
		warningIssues++
	} else {
		fmt.Fprintln(out, "✓ Scheduler daemon running")
	}

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}

	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}

	fmt.Fprintf(out, "Found %d warning(s). zsnap is functional but not fully configured.\n", warningIssues)
	return nil
}

// checkDoctorConfig validates the config file and, when probe is set,
// asks the store whether each configured dataset exists.
func checkDoctorConfig(cmd *cobra.Command, out io.Writer, probe bool) (critical, warnings int) {
	path := doctorConfigPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintln(out, "⚠ Cannot locate config file:", err)
			return 0, 1
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "⚠ No config file at:", path)
		fmt.Fprintln(out, "  Only needed for 'zsnap run' and 'zsnap schedule'")
		return 0, 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(out, "✗ Invalid config file:", err)
		return 1, 0
	}
	fmt.Fprintf(out, "✓ Config file valid: %s (%d datasets)\n", path, len(cfg.Datasets))

	if !probe {
		return 0, 0
	}

	snapshots := newSnapshotStore(effectiveZFSBinary(cfg))
	for _, ds := range cfg.Datasets {
		exists, err := snapshots.FilesystemExists(cmd.Context(), ds.Name)
		switch {
		case err != nil:
			fmt.Fprintf(out, "✗ Cannot check dataset %s: %v\n", ds.Name, err)
			critical++
		case !exists:
			fmt.Fprintf(out, "✗ Dataset %s does not exist\n", ds.Name)
			critical++
		default:
			fmt.Fprintf(out, "✓ Dataset %s exists\n", ds.Name)
		}
	}
	return critical, 0
}
