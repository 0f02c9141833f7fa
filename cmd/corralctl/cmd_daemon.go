package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "manage the corrald daemon process itself",
	}
	cmd.AddCommand(
		newDaemonStartCmd(),
		newDaemonStopCmd(),
		newDaemonResetCmd(),
		newDaemonHealthCmd(),
		newDaemonSetupCmd(),
	)
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start corrald if it isn't already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pingDaemon(socketPath()) {
				fmt.Println("corrald already running")
				return nil
			}
			if err := ensureDaemon(); err != nil {
				return err
			}
			fmt.Println("corrald started")
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop a running corrald by signaling its pidfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := readPidFile()
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Println("corrald is not running")
				return nil
			}
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				if err == syscall.ESRCH {
					fmt.Println("corrald is not running")
					return nil
				}
				return fmt.Errorf("signal corrald: %w", err)
			}
			for i := 0; i < 50; i++ {
				if !pingDaemon(socketPath()) {
					fmt.Println("corrald stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("corrald did not stop in time")
		},
	}
}

func newDaemonResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "reinitialize the id counter (requires an empty process table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return request("reset", serverFlag, nil, nil)
		},
	}
}

func newDaemonHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "report whether corrald is listening and responding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pingDaemon(socketPath()) {
				fmt.Println("ok")
				return nil
			}
			fmt.Println("unreachable")
			return &daemonError{msg: "corrald is not responding"}
		},
	}
}

func newDaemonSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "create the state directory and a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := rootDir()
			for _, sub := range []string{"", "logs"} {
				if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
					return err
				}
			}
			configPath := filepath.Join(root, "config")
			if _, err := os.Stat(configPath); err == nil {
				fmt.Printf("%s already exists\n", configPath)
				return nil
			}
			if err := os.WriteFile(configPath, []byte(defaultConfigTOML), 0o644); err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
			fmt.Printf("wrote %s\n", configPath)
			return nil
		},
	}
}

const defaultConfigTOML = `# corrald configuration. Every field is optional; see spec §1, §4.
role = "server"
shell = "/bin/sh"
sample_interval_seconds = 1
watch_debounce_millis = 200
terminate_grace_seconds = 5
min_uptime_for_backoff_reset_seconds = 30
default_crash_limit = 10
peer_timeout_seconds = 10
`

// readPidFile returns the daemon pid recorded at startup, or 0 if no
// pidfile exists.
func readPidFile() (int, error) {
	data, err := os.ReadFile(filepath.Join(rootDir(), "daemon.pid"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pidfile: %w", err)
	}
	return pid, nil
}
