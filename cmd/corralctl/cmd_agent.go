package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thainguyen06/pmc/internal/peer"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "manage this daemon's upstream agent connection and known peers",
	}
	cmd.AddCommand(
		newAgentConnectCmd(),
		newAgentDisconnectCmd(),
		newAgentStatusCmd(),
		newAgentListCmd(),
	)
	return cmd
}

func agentFilePath() string   { return filepath.Join(rootDir(), "agent") }
func serversFilePath() string { return filepath.Join(rootDir(), "servers") }

func newAgentConnectCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "record this daemon as an agent of the server at <url>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := peer.SaveAgentFile(agentFilePath(), peer.AgentInfo{
				ServerURL: args[0],
				AgentName: name,
			})
			if err != nil {
				return err
			}
			if name != "" {
				if err := peer.AddServer(serversFilePath(), peer.Server{Name: name, Addr: args[0]}); err != nil {
					return fmt.Errorf("register peer: %w", err)
				}
			}
			fmt.Printf("connected as agent %s (id %s) to %s\n", info.AgentName, info.AgentID, info.ServerURL)
			fmt.Println("set role = \"agent\" in the config file and restart corrald to take effect")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name this daemon reports to the server")
	return cmd
}

func newAgentDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "forget this daemon's upstream agent connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := peer.LoadAgentFile(agentFilePath())
			if err != nil {
				return err
			}
			if info != nil && info.AgentName != "" {
				if err := peer.RemoveServer(serversFilePath(), info.AgentName); err != nil {
					return fmt.Errorf("unregister peer: %w", err)
				}
			}
			return peer.RemoveAgentFile(agentFilePath())
		},
	}
}

func newAgentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print this daemon's agent connection, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := peer.LoadAgentFile(agentFilePath())
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Println("not connected")
				return nil
			}
			fmt.Printf("server:   %s\n", info.ServerURL)
			fmt.Printf("agent id: %s\n", info.AgentID)
			fmt.Printf("name:     %s\n", info.AgentName)
			return nil
		},
	}
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list peers this daemon can forward to via --server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if err := request("servers", serverFlag, nil, &names); err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no known peers")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
