package util

import (
	"errors"
	"github.com/ValentinKolb/tlock/lib/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// DefaultLockDir is the lock directory used if none is configured
func DefaultLockDir() string {
	return filepath.Join(os.TempDir(), "tlock")
}

// SetupConfigFlags adds the flags shared by all commands
func SetupConfigFlags(cmd *cobra.Command) {
	key := "lock-dir"
	cmd.PersistentFlags().String(key, DefaultLockDir(), WrapString("Directory that holds the lock files of named locks"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the lock metrics in Prometheus format to stderr when the command is done"))

	key = "retry-interval-ms"
	cmd.PersistentFlags().Int(key, 100, WrapString("Interval in milliseconds in which a lock file held by another process is polled"))
}

// InitConfig initializes configuration from .env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("tlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration from viper
func GetConfig() (*common.Config, error) {
	conf := &common.Config{
		LockDir:       viper.GetString("lock-dir"),
		WaitSecond:    viper.GetUint64("wait"),
		RetryInterval: time.Duration(viper.GetInt("retry-interval-ms")) * time.Millisecond,
		Metrics:       viper.GetBool("metrics"),
		LogLevel:      viper.GetString("log-level"),
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// ExitError carries the exit code of a command run under a lock
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode returns the process exit code for err
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}
