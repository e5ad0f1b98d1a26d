package cmd

import (
	"fmt"
	"github.com/ValentinKolb/tlock/cmd/lock"
	"github.com/ValentinKolb/tlock/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tlock",
		Short: "file based locking for processes and tasks",
		Long: fmt.Sprintf(`tLock (v%s)

Named locks backed by lock files. A lock excludes other processes through an
advisory OS lock and other tasks of the same process through an ownership
token, without blocking while it waits.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tLock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tLock v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupConfigFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(util.ExitCode(err))
	}
}
