// corrald is the supervisor daemon: it owns the process table and listens
// on a Unix socket for control-API requests from corralctl.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logging"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/peer"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/supervisor"
)

func main() {
	root := flag.String("root", defaultRoot(), "state directory (dump, logs/, config, servers)")
	dev := flag.Bool("dev", false, "log to stderr instead of the daemon log file")
	flag.Parse()

	if err := run(*root, *dev); err != nil {
		fmt.Fprintf(os.Stderr, "corrald: %v\n", err)
		os.Exit(1)
	}
}

func defaultRoot() string {
	if env := os.Getenv("CORRAL_ROOT"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".corral")
}

// writePidFile records this process's pid so `corralctl daemon stop` can
// signal it without going through the control API (spec §6 `daemon stop`).
func writePidFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// mergeServers overlays file-configured peers (the `servers` state file,
// mutated by `corralctl agent connect`) onto the TOML config's static
// servers list, file entries winning on name collision.
func mergeServers(configured, fromFile []peer.Server) []peer.Server {
	byName := make(map[string]peer.Server, len(configured)+len(fromFile))
	var order []string
	for _, s := range configured {
		if _, seen := byName[s.Name]; !seen {
			order = append(order, s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range fromFile {
		if _, seen := byName[s.Name]; !seen {
			order = append(order, s.Name)
		}
		byName[s.Name] = s
	}
	out := make([]peer.Server, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func run(root string, dev bool) error {
	for _, sub := range []string{"", "logs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return err
		}
	}

	cfg, servers, err := loadConfig(filepath.Join(root, "config"), root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fileServers, err := peer.LoadServersFile(filepath.Join(root, "servers"))
	if err != nil {
		return fmt.Errorf("load servers file: %w", err)
	}
	servers = mergeServers(servers, fileServers)

	log, err := logging.New(filepath.Join(root, "daemon.log"), dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	logs, err := logstore.New(filepath.Join(root, "logs"))
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}

	if err := writePidFile(filepath.Join(root, "daemon.pid")); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	defer os.Remove(filepath.Join(root, "daemon.pid"))

	tbl := record.New()
	sup := supervisor.New(cfg, log, tbl, logs)

	dumpPath := filepath.Join(root, "dump")
	if restored, skipped, err := sup.RestoreAndRelaunch(dumpPath); err != nil {
		log.Warnw("restore failed", "error", err)
	} else {
		log.Infow("restored from dump", "count", restored, "skipped", len(skipped))
		for _, reason := range skipped {
			log.Warnw("skipped restore entry", "reason", reason)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		if _, err := sup.Dump(dumpPath); err != nil {
			log.Warnw("dump on shutdown failed", "error", err)
		}
		cancel()
	}()

	go sup.Run(ctx)

	api := controlapi.New(cfg, sup, tbl, logs)
	pc := peer.New(cfg.Role, cfg.PeerTimeout, servers)

	srv := &server{cfg: cfg, log: log, api: api, logs: logs, peer: pc}
	if cfg.HTTPAddr != "" {
		go func() {
			if err := srv.runHTTP(ctx, cfg.HTTPAddr); err != nil {
				log.Warnw("http control surface stopped", "error", err)
			}
		}()
	}
	if err := srv.run(ctx, cfg.SocketPath); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	sup.Wait()
	return nil
}
