// Package config loads the zsnap YAML configuration used by the run and
// schedule commands.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/zsnap/internal/retention"
)

// DefaultSchedules are the cron specs used for classes without an
// explicit schedule.
var DefaultSchedules = map[retention.Class]string{
	retention.Hourly:  "0 * * * *",
	retention.Daily:   "0 0 * * *",
	retention.Monthly: "0 0 1 * *",
	retention.Yearly:  "0 0 1 1 *",
}

// Config is the top-level configuration file.
type Config struct {
	Journal       string          `yaml:"journal"`       // journal path; "none" disables it
	JournalMaxAge time.Duration   `yaml:"journalMaxAge"` // 0 keeps history forever
	ZFS           string          `yaml:"zfs"`           // zfs binary
	Logging       LoggingConfig   `yaml:"logging"`
	Datasets      []DatasetConfig `yaml:"datasets" validate:"min=1,dive"`
}

// LoggingConfig controls the scheduler's log output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatasetConfig describes one managed dataset.
type DatasetConfig struct {
	Name      string            `yaml:"name" validate:"required"`
	Action    string            `yaml:"action"` // for `zsnap run`; defaults to create
	Recursive bool              `yaml:"recursive"`
	Prune     *bool             `yaml:"prune"` // prune after create; defaults to true
	Retention map[string]int    `yaml:"retention"`
	Schedule  map[string]string `yaml:"schedule"`
}

// Dir returns the zsnap config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/zsnap if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "zsnap"), nil
}

// DefaultPath returns {Dir}/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// expandEnvVars replaces $(VAR) with os.Getenv(VAR).
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// EnvFile is read from the config file's directory before $(VAR)
// expansion. Variables already set in the environment win.
const EnvFile = ".env"

// Load reads, expands and validates the configuration at path.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(filepath.Join(filepath.Dir(path), EnvFile)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &retention.ConfigError{Field: "config file", Err: err}
	}
	return Parse(data)
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &retention.ConfigError{Field: "env file", Err: err}
	}
	return nil
}

// Parse decodes and validates a configuration document. $(VAR) references
// are expanded in decoded string values, so a variable can never add
// keys to the document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &retention.ConfigError{Field: "config file", Err: fmt.Errorf("unmarshalling yaml: %w", err)}
	}
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv applies $(VAR) expansion to every string setting.
func (c *Config) expandEnv() {
	c.Journal = expandEnvVars(c.Journal)
	c.ZFS = expandEnvVars(c.ZFS)
	c.Logging.Level = expandEnvVars(c.Logging.Level)
	c.Logging.Format = expandEnvVars(c.Logging.Format)

	for i := range c.Datasets {
		ds := &c.Datasets[i]
		ds.Name = expandEnvVars(ds.Name)
		ds.Action = expandEnvVars(ds.Action)
		for class, spec := range ds.Schedule {
			ds.Schedule[class] = expandEnvVars(spec)
		}
	}
}

// Validate checks every dataset entry. It never touches the store.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.JournalMaxAge < 0 {
		return &retention.ConfigError{Field: "journalMaxAge", Err: fmt.Errorf("negative duration %s", c.JournalMaxAge)}
	}

	seen := make(map[string]bool)
	for i := range c.Datasets {
		ds := &c.Datasets[i]
		if seen[ds.Name] {
			return &retention.ConfigError{Field: fmt.Sprintf("datasets[%d].name", i), Err: fmt.Errorf("duplicate dataset %q", ds.Name)}
		}
		seen[ds.Name] = true

		if _, err := ds.ParsedAction(); err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		policy, err := ds.Policy()
		if err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		if _, err := ds.Schedules(policy); err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
	}
	return nil
}

// ParsedAction returns the dataset's action, create when unset.
func (d DatasetConfig) ParsedAction() (retention.Action, error) {
	if strings.TrimSpace(d.Action) == "" {
		return retention.ActionCreate, nil
	}
	return retention.ParseAction(d.Action)
}

// PruneAfterCreate reports whether creates are followed by a prune.
func (d DatasetConfig) PruneAfterCreate() bool {
	return d.Prune == nil || *d.Prune
}

// Policy builds the retention policy for the dataset's own action.
func (d DatasetConfig) Policy() (retention.Policy, error) {
	action, err := d.ParsedAction()
	if err != nil {
		return retention.Policy{}, err
	}
	return d.PolicyFor(action)
}

// PolicyFor builds the retention policy used when running action.
// Prune-after-create only applies to creates.
func (d DatasetConfig) PolicyFor(action retention.Action) (retention.Policy, error) {
	counts := make(map[retention.Class]int, len(d.Retention))
	for label, n := range d.Retention {
		class, err := retention.ParseClass(label)
		if err != nil {
			return retention.Policy{}, &retention.ConfigError{Field: "retention", Err: err}
		}
		counts[class] = n
	}

	policy, err := retention.NewPolicy(counts,
		retention.WithRecursive(d.Recursive),
		retention.WithPruneAfterCreate(action == retention.ActionCreate && d.PruneAfterCreate()))
	if err != nil {
		return retention.Policy{}, err
	}
	if err := policy.Validate(); err != nil {
		return retention.Policy{}, err
	}
	return policy, nil
}

// Schedules returns the cron spec for every managed class of policy.
// Explicit specs must name a managed class and parse as standard cron.
func (d DatasetConfig) Schedules(policy retention.Policy) (map[retention.Class]string, error) {
	specs := make(map[retention.Class]string)
	for _, class := range policy.Managed() {
		specs[class] = DefaultSchedules[class]
	}

	for label, spec := range d.Schedule {
		class, err := retention.ParseClass(label)
		if err != nil {
			return nil, &retention.ConfigError{Field: "schedule", Err: err}
		}
		if !policy.Count(class).IsSet() {
			return nil, &retention.ConfigError{Field: "schedule", Err: fmt.Errorf("class %s has a schedule but no retention count", class)}
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, &retention.ConfigError{Field: "schedule." + string(class), Err: err}
		}
		specs[class] = spec
	}
	return specs, nil
}
