// Package scheduler runs snapshot jobs on cron schedules.
//
// Each managed class of each configured dataset becomes one job: at its
// scheduled time the job creates a snapshot of that class and, when the
// dataset's policy asks for it, prunes the class right after. Jobs never
// overlap; a single lock serializes every run against the store.
//
// Key features:
//   - Standard five-field cron specs (robfig/cron)
//   - Hot reload of the config file via fsnotify, debounced
//   - Structured logging through log/slog
//   - Daemon mode support with PID file management
//
// Example usage:
//
//	s := scheduler.New(runJob, scheduler.WithLogger(logger))
//	jobs, err := scheduler.JobsFromConfig(cfg)
//	if err != nil {
//		return err
//	}
//	if err := s.Apply(jobs); err != nil {
//		return err
//	}
//	return s.Run(ctx)
package scheduler
