// Package zfs drives the zfs(8) command to list, create and destroy
// snapshots. It implements retention.Store.
package zfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultBinary is the zfs command looked up on PATH.
const DefaultBinary = "zfs"

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is returned when zfs exits unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s failed: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s failed: %v (output: %s)", strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr separately.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{
			Args:   append([]string{name}, args...),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// CLI is a snapshot store backed by the zfs command.
type CLI struct {
	binary string
	runner Runner
}

// Option configures a CLI.
type Option func(*CLI)

// WithBinary overrides the zfs executable.
func WithBinary(path string) Option {
	return func(c *CLI) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(c *CLI) { c.runner = r }
}

// New returns a CLI using the zfs binary on PATH.
func New(opts ...Option) *CLI {
	c := &CLI{binary: DefaultBinary, runner: ExecRunner{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FilesystemExists reports whether name is an existing filesystem dataset.
// Volumes and snapshots do not count.
func (c *CLI) FilesystemExists(ctx context.Context, name string) (bool, error) {
	out, err := c.runner.Run(ctx, c.binary, "list", "-H", "-o", "name", "-t", "filesystem", name)
	if err != nil {
		if isMissingDataset(err) {
			return false, nil
		}
		return false, err
	}

	for _, line := range splitLines(out) {
		if line == name {
			return true, nil
		}
	}
	return false, nil
}

// ListSnapshots returns the fully qualified snapshots of dataset itself,
// oldest first. Snapshots of descendant datasets are not included.
func (c *CLI) ListSnapshots(ctx context.Context, dataset string) ([]string, error) {
	out, err := c.runner.Run(ctx, c.binary,
		"list", "-H", "-o", "name", "-t", "snapshot", "-s", "creation", "-d", "1", dataset)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CreateSnapshot runs `zfs snapshot [-r] dataset@name`.
func (c *CLI) CreateSnapshot(ctx context.Context, dataset, name string, recursive bool) error {
	args := []string{"snapshot"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, dataset+"@"+name)

	_, err := c.runner.Run(ctx, c.binary, args...)
	return err
}

// DestroySnapshot runs `zfs destroy [-r] id`. The id must name a snapshot;
// anything else is refused so a filesystem is never destroyed by mistake.
func (c *CLI) DestroySnapshot(ctx context.Context, id string, recursive bool) error {
	at := strings.IndexByte(id, '@')
	if at <= 0 || at == len(id)-1 {
		return fmt.Errorf("refusing to destroy %q: not a snapshot", id)
	}

	args := []string{"destroy"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, id)

	_, err := c.runner.Run(ctx, c.binary, args...)
	return err
}

// isMissingDataset recognizes zfs errors for absent or non-filesystem
// datasets.
func isMissingDataset(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not applicable to datasets of this type") ||
		strings.Contains(msg, "invalid character") ||
		strings.Contains(msg, "invalid dataset name")
}

func splitLines(out []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
