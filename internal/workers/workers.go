// Package workers implements Worker-Group Expansion (spec §4.K): turning a
// single `create` request with `workers = N` into N independent record
// specs, each with its own name and, when a port range is given, its own
// `PORT` environment entry.
package workers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thainguyen06/pmc/internal/record"
)

// Spec is one worker's record, pre-insertion (no id yet).
type Spec struct {
	Name        string
	Script      string
	Path        string
	Env         map[string]string
	Watch       *record.Watch
	MaxMemory   uint64
	CrashLimit  int
	WorkerGroup string
}

// Expand builds n worker Specs named "<base>-worker-<i>" for i in 1..=n
// (spec §4.K). portRange is either empty (no PORT entry), a single port
// ("8080", all workers share it), or a range ("8080-8083", requiring
// exactly n ports).
func Expand(n int, portRange, name, script, path string, env map[string]string, watch *record.Watch, maxMem uint64, crashLimit int) ([]Spec, error) {
	if n < 2 {
		return nil, fmt.Errorf("workers must be >= 2, got %d", n)
	}

	base := name
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
		if base == "" || base == "." || base == "/" {
			base = "worker-group"
		}
	}

	ports, err := resolvePorts(portRange, n)
	if err != nil {
		return nil, err
	}

	group := fmt.Sprintf("%s-%d", base, n)
	specs := make([]Spec, n)
	for i := 0; i < n; i++ {
		workerEnv := make(map[string]string, len(env)+1)
		for k, v := range env {
			workerEnv[k] = v
		}
		if ports != nil {
			workerEnv["PORT"] = strconv.Itoa(ports[i])
		}
		specs[i] = Spec{
			Name:        fmt.Sprintf("%s-worker-%d", base, i+1),
			Script:      script,
			Path:        path,
			Env:         workerEnv,
			Watch:       watch,
			MaxMemory:   maxMem,
			CrashLimit:  crashLimit,
			WorkerGroup: group,
		}
	}
	return specs, nil
}

// resolvePorts parses portRange into n per-worker ports, or returns nil
// (no PORT entry) for an empty range.
func resolvePorts(portRange string, n int) ([]int, error) {
	if portRange == "" {
		return nil, nil
	}

	if a, b, ok := strings.Cut(portRange, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("invalid port_range %q: %w", portRange, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("invalid port_range %q: %w", portRange, err)
		}
		if end-start+1 != n {
			return nil, fmt.Errorf("port_range %q covers %d ports, need %d", portRange, end-start+1, n)
		}
		ports := make([]int, n)
		for i := range ports {
			ports[i] = start + i
		}
		return ports, nil
	}

	p, err := strconv.Atoi(strings.TrimSpace(portRange))
	if err != nil {
		return nil, fmt.Errorf("invalid port_range %q: %w", portRange, err)
	}
	ports := make([]int, n)
	for i := range ports {
		ports[i] = p
	}
	return ports, nil
}
