package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// usageError marks a locally-detected malformed argument (spec §6 exit code
// 2), distinct from a daemonError (exit code 1).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

var serverFlag string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "corralctl: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var u *usageError
	if errors.As(err, &u) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "corralctl",
		Short:         "control client for the corrald supervisor daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverFlag, "server", "", "route this command through a named peer daemon")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newReloadCmd(),
		newRemoveCmd(),
		newInfoCmd(),
		newEnvCmd(),
		newCstartCmd(),
		newAdjustCmd(),
		newSaveCmd(),
		newRestoreCmd(),
		newListCmd(),
		newLogsCmd(),
		newExportCmd(),
		newImportCmd(),
		newDaemonCmd(),
		newAgentCmd(),
	)
	return root
}
