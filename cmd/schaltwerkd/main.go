// schaltwerkd is the background daemon that supervises PTY-backed agent
// sessions across one or more git repositories.
//
// Usage:
//
//	schaltwerkd [--root <dir>] [--log-level <level>] [--log-file <path>]
//
// The daemon listens on a Unix domain socket at <root>/schaltwerkd.sock
// and handles commands from the schaltwerkctl CLI. It is normally started
// automatically by schaltwerkctl; you do not need to run it by hand.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schaltwerk/schaltwerkd/internal/config"
	"github.com/schaltwerk/schaltwerkd/internal/daemon"
	"github.com/schaltwerk/schaltwerkd/internal/logging"
)

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("cannot determine home directory: %v", err)
	}
	defaultRoot := filepath.Join(homeDir, ".schaltwerkd")
	// SCHALTWERK_ROOT overrides the default so users can point at a local
	// test directory without touching ~/.schaltwerkd.
	if env := os.Getenv("SCHALTWERK_ROOT"); env != "" {
		defaultRoot = env
	}

	rootDir := flag.String("root", defaultRoot, "schaltwerkd data directory (env: SCHALTWERK_ROOT)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "optional log file path, in addition to stdout")
	flag.Parse()

	if err := os.MkdirAll(*rootDir, 0o755); err != nil {
		log.Fatalf("create root dir: %v", err)
	}

	if err := logging.Init(*logLevel, *logFile); err != nil {
		log.Fatalf("init logging: %v", err)
	}

	appCfg, err := config.LoadAppConfig()
	if err != nil {
		log.Fatalf("load app config: %v", err)
	}

	socketPath := filepath.Join(*rootDir, "schaltwerkd.sock")
	if appCfg.SocketRoot != "" {
		socketPath = filepath.Join(appCfg.SocketRoot, "schaltwerkd.sock")
	}

	d := daemon.New(appCfg)

	// Graceful shutdown on SIGINT / SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info("received signal, shutting down", "signal", sig.String())
		os.Remove(socketPath)
		d.Close()
		os.Exit(0)
	}()

	if err := d.Run(socketPath); err != nil {
		log.Fatalf("daemon run: %v", err)
	}
}
