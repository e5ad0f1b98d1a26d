package lock

import (
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/ValentinKolb/tlock/cmd/util"
	"github.com/ValentinKolb/tlock/lib/common"
	"github.com/ValentinKolb/tlock/lib/filelock"
	"github.com/ValentinKolb/tlock/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"
)

var (
	plog = logger.GetLogger("cmd")

	config   *common.Config
	registry = filelock.Default()
	lockMgr  lockmgr.ILockManager
	holdFor  time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		PersistentPreRunE: setupLockManager,
	}

	// runCmd represents the run command
	runCmd = &cobra.Command{
		Use:   "run [key] -- [command] [args...]",
		Short: "Run a command while holding a lock",
		Long:  "Acquire the named lock, run the command and release the lock when it exits. The exit code of the command is passed on.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRun,
	}

	// holdCmd represents the hold command
	holdCmd = &cobra.Command{
		Use:   "hold [key]",
		Short: "Acquire a lock and hold it until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE:  runHold,
	}

	// statusCmd represents the status command
	statusCmd = &cobra.Command{
		Use:   "status [key]",
		Short: "Show whether a lock is held and by which process",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(runCmd)
	LockCommands.AddCommand(holdCmd)
	LockCommands.AddCommand(statusCmd)

	LockCommands.PersistentFlags().Uint64("wait", 0, util.WrapString("How many seconds to wait for the lock (0 to fail immediately)"))
	holdCmd.Flags().DurationVar(&holdFor, "for", 0, util.WrapString("Release the lock after this duration (0 to hold until interrupted)"))
}

// setupLockManager reads the configuration and initializes logging and the lock manager
func setupLockManager(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if config, err = util.GetConfig(); err != nil {
		return err
	}
	if err := common.InitLoggers(config); err != nil {
		return err
	}
	plog.Debugf("configuration:%s", config)

	lockMgr, err = lockmgr.NewLockManager(registry, config.LockDir, config.RetryInterval)
	return err
}

// finish closes the lock manager and prints the metrics if requested
func finish(err error) error {
	if cerr := lockMgr.Close(); cerr != nil {
		plog.Errorf("closing lock manager: %v", cerr)
	}
	if config.Metrics {
		registry.WriteMetrics(os.Stderr)
	}
	return err
}

// acquire acquires key or returns an error naming the current holder
func acquire(key string) ([]byte, error) {
	acquired, ownerID, err := lockMgr.AcquireLock(key, config.WaitSecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		path, _ := lockmgr.LockPath(config.LockDir, key)
		if st, err := filelock.Probe(path); err == nil && st.Locked && st.PID != 0 {
			return nil, fmt.Errorf("lock %q is held by process %d", key, st.PID)
		}
		return nil, fmt.Errorf("lock %q is held by someone else", key)
	}
	return ownerID, nil
}

func release(key string, ownerID []byte) error {
	released, err := lockMgr.ReleaseLock(key, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if !released {
		return fmt.Errorf("lock %q was not released", key)
	}
	return nil
}

// runRun handles the run command
func runRun(_ *cobra.Command, args []string) error {
	key, command := args[0], args[1:]

	ownerID, err := acquire(key)
	if err != nil {
		return finish(err)
	}
	plog.Infof("%s: acquired, running %v", key, command)

	c := exec.Command(command[0], command[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr

	// forward signals so the lock is released after the command ends
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	runErr := c.Start()
	if runErr == nil {
		done := make(chan struct{})
		go func() {
			for {
				select {
				case sig := <-sigs:
					_ = c.Process.Signal(sig)
				case <-done:
					return
				}
			}
		}()
		runErr = c.Wait()
		close(done)
	}

	if err := release(key, ownerID); err != nil {
		return finish(errors.Join(runErr, err))
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return finish(&util.ExitError{Code: exitErr.ExitCode()})
	}
	return finish(runErr)
}

// runHold handles the hold command
func runHold(_ *cobra.Command, args []string) error {
	key := args[0]

	ownerID, err := acquire(key)
	if err != nil {
		return finish(err)
	}
	fmt.Printf("acquired=true, ownerId=%s\n", hex.EncodeToString(ownerID))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var timeout <-chan time.Time
	if holdFor > 0 {
		timeout = time.After(holdFor)
	}
	select {
	case <-sigs:
	case <-timeout:
	}

	if err := release(key, ownerID); err != nil {
		return finish(err)
	}
	fmt.Printf("released=true\n")
	return finish(nil)
}

// runStatus handles the status command
func runStatus(_ *cobra.Command, args []string) error {
	path, err := lockmgr.LockPath(config.LockDir, args[0])
	if err != nil {
		return finish(err)
	}
	st, err := filelock.Probe(path)
	if err != nil {
		return finish(err)
	}
	fmt.Printf("path=%s, exists=%t, locked=%t, pid=%d\n", st.Path, st.Exists, st.Locked, st.PID)
	return finish(nil)
}
