package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/record"
)

func newStartCmd() *cobra.Command {
	var name, watch, maxMemory, portRange string
	var workerCount int

	cmd := &cobra.Command{
		Use:   "start <script|ref>",
		Short: "create and launch a new record, or start an existing one by ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			// A bare ref (by name or id) that already exists is started in
			// place rather than re-created (spec §6 `start <script|ref>`).
			var existing controlapi.RecordDetail
			err := request("info", serverFlag, map[string]string{"Ref": target}, &existing)
			if err == nil {
				return request("action", serverFlag, map[string]any{"Ref": target, "Method": controlapi.ActionStart}, nil)
			}
			if err.Error() != controlapi.ErrNotFound.Error() {
				return err
			}

			var watchSpec *record.Watch
			if watch != "" {
				watchSpec = &record.Watch{Enabled: true, Path: watch}
			}

			req := controlapi.CreateRequest{
				Script:    target,
				Name:      name,
				Env:       map[string]string{},
				Watch:     watchSpec,
				MaxMemory: maxMemory,
				Workers:   workerCount,
				PortRange: portRange,
			}
			var ids []int
			if err := request("create", serverFlag, req, &ids); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, formatIDs(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name for the new record")
	cmd.Flags().StringVar(&watch, "watch", "", "directory to watch for changes; any event triggers a reload")
	cmd.Flags().StringVar(&maxMemory, "max-memory", "", "RSS ceiling (e.g. 512M, 2G); exceeding it kills and relaunches")
	cmd.Flags().IntVarP(&workerCount, "workers", "w", 0, "expand into N sibling worker records (spec §4.K)")
	cmd.Flags().StringVarP(&portRange, "port-range", "p", "", "PORT assignment for worker expansion, e.g. 3000-3002")
	return cmd
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, " ")
}

func newStopCmd() *cobra.Command {
	return actionCmd("stop", controlapi.ActionStop, "stop a running record")
}

func newRestartCmd() *cobra.Command {
	return actionCmd("restart", controlapi.ActionRestart, "restart a record, resetting its crash counter")
}

func newReloadCmd() *cobra.Command {
	return actionCmd("reload", controlapi.ActionReload, "reload a record (same as restart: resets its crash counter)")
}

func newRemoveCmd() *cobra.Command {
	return actionCmd("remove", controlapi.ActionDelete, "stop (if running) and delete a record")
}

func actionCmd(use string, method controlapi.ActionMethod, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ref>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request("action", serverFlag, map[string]any{"Ref": args[0], "Method": method}, nil)
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <ref>",
		Short: "print full detail for one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var detail controlapi.RecordDetail
			if err := request("info", serverFlag, map[string]string{"Ref": args[0]}, &detail); err != nil {
				return err
			}
			printInfo(detail)
			return nil
		},
	}
}

func printInfo(d controlapi.RecordDetail) {
	fmt.Printf("id:          %d\n", d.ID)
	fmt.Printf("name:        %s\n", d.Name)
	fmt.Printf("status:      %s\n", paint(colorStatus(d.Status), string(d.Status)))
	fmt.Printf("script:      %s\n", d.Script)
	fmt.Printf("path:        %s\n", d.Path)
	fmt.Printf("pid:         %d\n", d.PID)
	fmt.Printf("restarts:    %d\n", d.Restarts)
	fmt.Printf("crash_value: %d/%d\n", d.CrashValue, d.CrashLimit)
	if d.MaxMemory != "" {
		fmt.Printf("max_memory:  %s\n", d.MaxMemory)
	}
	if d.Watch != nil && d.Watch.Enabled {
		fmt.Printf("watch:       %s\n", d.Watch.Path)
	}
	if d.Workers != "" {
		fmt.Printf("worker_group: %s\n", d.Workers)
	}
	fmt.Printf("cpu:         %.1f%%\n", d.Stats.CPUPercent)
	fmt.Printf("rss:         %s\n", record.FormatMaxMemory(d.Stats.RSSBytes))
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env <ref>",
		Short: "print a record's effective environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var env map[string]string
			if err := request("env", serverFlag, map[string]string{"Ref": args[0]}, &env); err != nil {
				return err
			}
			for k, v := range env {
				fmt.Printf("%s=%s\n", k, v)
			}
			return nil
		},
	}
}

func newCstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cstart <ref>",
		Short: "print the literal shell command line that would relaunch a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var line string
			if err := request("cstart", serverFlag, map[string]string{"Ref": args[0]}, &line); err != nil {
				return err
			}
			fmt.Println(line)
			return nil
		},
	}
}

func newAdjustCmd() *cobra.Command {
	var command, name string
	cmd := &cobra.Command{
		Use:   "adjust <ref>",
		Short: "edit a record's stored command and/or name without relaunching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" && name == "" {
				return usageErrorf("adjust requires --command and/or --name")
			}
			payload := map[string]any{"Ref": args[0]}
			if command != "" {
				payload["Command"] = command
			}
			if name != "" {
				payload["Name"] = name
			}
			return request("adjust", serverFlag, payload, nil)
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "new script/command")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	return cmd
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "dump the process table to the daemon's dumpfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if err := request("save", serverFlag, nil, &n); err != nil {
				return err
			}
			fmt.Printf("saved %d record(s)\n", n)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "reload the dumpfile and relaunch previously running records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if err := request("restore", serverFlag, nil, &n); err != nil {
				return err
			}
			fmt.Printf("restored %d record(s)\n", n)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []controlapi.RecordSummary
			if err := request("list", serverFlag, nil, &rows); err != nil {
				return err
			}
			switch format {
			case "", "default":
				printListDefault(rows)
			case "raw":
				for _, r := range rows {
					fmt.Printf("%d\t%s\t%s\t%d\t%d\n", r.ID, r.Name, r.Status, r.Restarts, r.PID)
				}
			case "json":
				return printJSON(rows)
			default:
				return usageErrorf("unknown --format %q (want raw|json|default)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "default", "output format: raw|json|default")
	return cmd
}

func printListDefault(rows []controlapi.RecordSummary) {
	fmt.Printf("%-4s %-24s %-10s %-9s %s\n", "ID", "NAME", "STATUS", "RESTARTS", "PID")
	for _, r := range rows {
		fmt.Printf("%-4d %-24s %s %-9d %d\n",
			r.ID, truncate(r.Name, 24), paint(colorStatus(r.Status), fmt.Sprintf("%-10s", r.Status)), r.Restarts, r.PID)
	}
}

func newLogsCmd() *cobra.Command {
	var lines int
	var errorsOnly bool
	cmd := &cobra.Command{
		Use:   "logs <ref>",
		Short: "print the last lines of a record's stdout (or stderr with --errors-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream := logstore.StreamOut
			if errorsOnly {
				stream = logstore.StreamErr
			}
			var out []string
			payload := map[string]any{"Ref": args[0], "Stream": stream, "Lines": lines}
			if err := request("logs", serverFlag, payload, &out); err != nil {
				return err
			}
			for _, line := range out {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to print")
	cmd.Flags().BoolVar(&errorsOnly, "errors-only", false, "print stderr instead of stdout")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <ref|csv|all> <file>",
		Short: "write records to a human-readable configuration file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// ref selection happens daemon-side during a future extension;
			// today export always writes the whole table (spec §6 `export
			// <ref|csv|all> <file>` — "all" is this implementation's only
			// supported selector so far).
			if args[0] != "all" {
				return usageErrorf("export currently supports only the \"all\" selector")
			}
			return request("export", serverFlag, map[string]string{"Path": args[1]}, nil)
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "insert every record described in a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if err := request("import", serverFlag, map[string]string{"Path": args[0]}, &n); err != nil {
				return err
			}
			fmt.Printf("imported %d record(s)\n", n)
			return nil
		},
	}
}
