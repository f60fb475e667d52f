package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	mcpcli "github.com/yonaka/mcp-cli"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	Server     string `short:"s" long:"server" description:"Server name from config (e.g. playwright, zen)"`
	ServerArgs string `long:"server-args" description:"Additional server arguments (JSON array, e.g. '[\"--gui\"]')"`
	Verbose    bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

// app holds the state threaded through subcommands.
type app struct {
	opts globalOptions
}

func newApp() *app {
	return &app{}
}

// logger builds the CLI's stderr logger; user-facing output goes to stdout.
func (a *app) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.opts.Verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// serverContext resolves everything a server-bound command needs: the
// profile from config and the (directory, server) key for the cwd.
func (a *app) serverContext() (mcpcli.Key, *mcpcli.ServerProfile, error) {
	if a.opts.Server == "" {
		return mcpcli.Key{}, nil, fmt.Errorf("--server required (use 'list-servers' to see available servers)")
	}

	cfg, err := mcpcli.LoadConfig()
	if err != nil {
		return mcpcli.Key{}, nil, err
	}

	prof, err := cfg.Lookup(a.opts.Server)
	if err != nil {
		return mcpcli.Key{}, nil, err
	}

	key, err := mcpcli.NewKey(".", a.opts.Server)
	if err != nil {
		return mcpcli.Key{}, nil, err
	}

	return key, prof, nil
}

// keyOnly builds the (directory, server) key without touching the config;
// stopping or inspecting a daemon must work even for servers since removed
// from the configuration.
func (a *app) keyOnly() (mcpcli.Key, error) {
	if a.opts.Server == "" {
		return mcpcli.Key{}, fmt.Errorf("--server required (use 'list-servers' to see available servers)")
	}

	return mcpcli.NewKey(".", a.opts.Server)
}

// extraArgs parses --server-args. nil means "no override"; an empty JSON
// array overrides default_args with nothing.
func (a *app) extraArgs() ([]string, error) {
	if a.opts.ServerArgs == "" {
		return nil, nil
	}

	var args []string
	if err := json.Unmarshal([]byte(a.opts.ServerArgs), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON in --server-args (expected array of strings): %w", err)
	}

	if args == nil {
		args = []string{}
	}

	return args, nil
}

// readToolArgs parses the --args value, reading from stdin when it is "-".
func readToolArgs(raw string) (json.RawMessage, error) {
	if raw == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read JSON from stdin: %w", err)
		}

		raw = string(data)
	}

	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("invalid JSON arguments: %s", raw)
	}

	return json.RawMessage(raw), nil
}

// printJSON pretty-prints a raw result payload to stdout.
func printJSON(result json.RawMessage) error {
	var buf any
	if err := json.Unmarshal(result, &buf); err != nil {
		// Not an object after all; print as-is.
		fmt.Println(string(result))

		return nil
	}

	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(pretty))

	return nil
}
