package config

import (
	"errors"
	"fmt"
	"strings"
)

// rule reports a problem with one setting, or "" when the setting is fine.
type rule struct {
	key   string
	check func(*Config) string
}

func required(get func(*Config) string) func(*Config) string {
	return func(c *Config) string {
		if strings.TrimSpace(get(c)) == "" {
			return "must be set"
		}
		return ""
	}
}

func positive(get func(*Config) int) func(*Config) string {
	return func(c *Config) string {
		if get(c) <= 0 {
			return "must be positive"
		}
		return ""
	}
}

func nonNegative(get func(*Config) int) func(*Config) string {
	return func(c *Config) string {
		if get(c) < 0 {
			return "must be >= 0"
		}
		return ""
	}
}

var rules = []rule{
	{"paths.data_dir", required(func(c *Config) string { return c.Paths.DataDir })},
	{"library.path", required(func(c *Config) string { return c.Library.Path })},
	{"library.directory", required(func(c *Config) string { return c.Library.Directory })},
	{"import.import_threshold", func(c *Config) string {
		if t := c.Import.ImportThreshold; t < 0 || t > 1 {
			return "must be between 0 and 1"
		}
		return ""
	}},
	{"import.duplicate_action", func(c *Config) string {
		if _, ok := duplicateActions[c.Import.DuplicateAction]; !ok {
			return fmt.Sprintf("unsupported value %q (want skip, keep, remove, merge, or ask)", c.Import.DuplicateAction)
		}
		return ""
	}},
	{"analysis.key_timeout_seconds", positive(func(c *Config) int { return c.Analysis.KeyTimeoutSeconds })},
	{"workflow.queue_poll_interval", positive(func(c *Config) int { return c.Workflow.QueuePollInterval })},
	{"workflow.error_retry_interval", positive(func(c *Config) int { return c.Workflow.ErrorRetryInterval })},
	{"workflow.heartbeat_interval", positive(func(c *Config) int { return c.Workflow.HeartbeatInterval })},
	{"workflow.heartbeat_timeout", func(c *Config) string {
		if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
			return "must be greater than workflow.heartbeat_interval"
		}
		return ""
	}},
	{"notifications.request_timeout", positive(func(c *Config) int { return c.Notifications.RequestTimeout })},
	{"notifications.rate_limit", func(c *Config) string {
		if c.Notifications.RateLimit < 0 {
			return "must be >= 0"
		}
		return ""
	}},
	{"logging.format", func(c *Config) string {
		switch c.Logging.Format {
		case "console", "json":
			return ""
		}
		return fmt.Sprintf("unsupported value %q", c.Logging.Format)
	}},
	{"logging.retention_days", nonNegative(func(c *Config) int { return c.Logging.RetentionDays })},
}

// Validate checks every setting and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	for _, r := range rules {
		if msg := r.check(c); msg != "" {
			errs = append(errs, fmt.Errorf("%s %s", r.key, msg))
		}
	}
	return errors.Join(errs...)
}
