package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	mcpcli "github.com/yonaka/mcp-cli"
)

// runDaemonEntry is the hidden daemon process entry. The supervisor
// re-executes this binary with InternalDaemonCommand followed by
// --server, --dir, and optionally --server-args; stderr is already
// redirected to the daemon log file.
func runDaemonEntry(args []string) error {
	server := flagValue(args, "--server")
	if server == "" {
		return fmt.Errorf("%s requires --server", mcpcli.InternalDaemonCommand)
	}

	dir := flagValue(args, "--dir")
	if dir == "" {
		var err error

		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	var extraArgs []string
	if raw := flagValue(args, "--server-args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &extraArgs); err != nil {
			return fmt.Errorf("invalid --server-args: %w", err)
		}
	}

	cfg, err := mcpcli.LoadConfig()
	if err != nil {
		return err
	}

	prof, err := cfg.Lookup(server)
	if err != nil {
		return err
	}

	key, err := mcpcli.NewKey(dir, server)
	if err != nil {
		return err
	}

	// Stderr is the daemon's log file; everything the daemon says lands
	// there for postmortem.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return mcpcli.RunDaemon(context.Background(), log, key, prof, extraArgs)
}

// flagValue finds the value following a flag in a raw argument list.
func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}

	return ""
}
