package common

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration parameters of the tlock command.
type Config struct {
	// directory of the named lock files
	LockDir string

	// how long to wait for a lock (0 = fail immediately)
	WaitSecond uint64
	// polling interval while another process holds a lock file
	RetryInterval time.Duration

	// print Prometheus metrics after the command
	Metrics bool

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.LockDir == "" {
		return fmt.Errorf("lock-dir must not be empty")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry-interval-ms must be positive, got %v", c.RetryInterval)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Locking")
	addField("Lock Directory", c.LockDir)
	addField("Wait", fmt.Sprintf("%d sec", c.WaitSecond))
	addField("Retry Interval", fmt.Sprintf("%d ms", c.RetryInterval.Milliseconds()))

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	addField("Metrics", fmt.Sprintf("%t", c.Metrics))

	return sb.String()
}
