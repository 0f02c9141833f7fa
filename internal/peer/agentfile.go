package peer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// AgentInfo is the daemon's `agent` state file: present only when this
// daemon has been connected upstream as an agent (spec §6 "for agents an
// additional agent file with server URL, agent id, agent name").
type AgentInfo struct {
	ServerURL string `json:"server_url"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// LoadAgentFile reads path. A missing file means "not connected" and is
// reported as (nil, nil) rather than an error.
func LoadAgentFile(path string) (*AgentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var info AgentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse agent file: %w", err)
	}
	return &info, nil
}

// SaveAgentFile writes info to path, minting a fresh agent id if one was
// not supplied.
func SaveAgentFile(path string, info AgentInfo) (AgentInfo, error) {
	if info.AgentID == "" {
		info.AgentID = uuid.NewString()
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return info, fmt.Errorf("marshal agent file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return info, fmt.Errorf("write agent file: %w", err)
	}
	return info, nil
}

// RemoveAgentFile deletes path, if present (spec §6 CLI `agent disconnect`).
func RemoveAgentFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
