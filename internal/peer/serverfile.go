package peer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadServersFile reads the daemon's `servers` state file (spec §6 "servers
// (peer address + optional token)"). A missing file is not an error: a
// fresh daemon simply knows no peers yet.
func LoadServersFile(path string) ([]Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var servers []Server
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}
	return servers, nil
}

// SaveServersFile writes servers to path, replacing any existing file
// atomically via the same temp-file-then-rename sequence as persist.Dump.
func SaveServersFile(path string, servers []Server) error {
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal servers file: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".servers-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp servers file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp servers file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp servers file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename servers file into place: %w", err)
	}
	return nil
}

// AddServer upserts one entry (matched by name) into the servers file.
func AddServer(path string, entry Server) error {
	servers, err := LoadServersFile(path)
	if err != nil {
		return err
	}
	replaced := false
	for i, s := range servers {
		if s.Name == entry.Name {
			servers[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		servers = append(servers, entry)
	}
	return SaveServersFile(path, servers)
}

// RemoveServer drops the entry named name from the servers file, if present.
func RemoveServer(path, name string) error {
	servers, err := LoadServersFile(path)
	if err != nil {
		return err
	}
	out := servers[:0]
	for _, s := range servers {
		if s.Name != name {
			out = append(out, s)
		}
	}
	return SaveServersFile(path, out)
}
