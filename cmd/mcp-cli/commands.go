package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	mcpcli "github.com/yonaka/mcp-cli"
)

// listServersCmd prints the configured server profiles.
type listServersCmd struct {
	app *app
}

func (c *listServersCmd) Execute(_ []string) error {
	cfg, err := mcpcli.LoadConfig()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Println("Configured MCP servers:")
	fmt.Println()

	for _, name := range names {
		prof := cfg[name]

		desc := prof.Description
		if desc == "" {
			desc = "No description"
		}

		fmt.Printf("  %s: %s\n", name, desc)
		fmt.Printf("    Command: %v\n", prof.Command)

		if len(prof.DefaultArgs) > 0 {
			fmt.Printf("    Default args: %v\n", prof.DefaultArgs)
		}

		if prof.SupportsDaemon {
			fmt.Println("    Daemon support: yes")
		}

		fmt.Println()
	}

	return nil
}

// listToolsCmd prints the server's tool list.
type listToolsCmd struct {
	app *app
}

func (c *listToolsCmd) Execute(_ []string) error {
	key, prof, err := c.app.serverContext()
	if err != nil {
		return err
	}

	extra, err := c.app.extraArgs()
	if err != nil {
		return err
	}

	r := mcpcli.NewRouter(c.app.logger())

	result, err := r.ListTools(context.Background(), key, prof, mcpcli.CallOptions{ExtraArgs: extra})
	if err != nil {
		return err
	}

	return printJSON(result)
}

// callCmd invokes one tool.
type callCmd struct {
	app *app

	Args struct {
		Tool string `positional-arg-name:"tool" description:"Tool name (e.g. browser_navigate, chat)" required:"true"`
	} `positional-args:"yes"`

	ToolArgs string `short:"a" long:"args" default:"{}" description:"Arguments as JSON string, or '-' to read from stdin"`
}

func (c *callCmd) Execute(_ []string) error {
	key, prof, err := c.app.serverContext()
	if err != nil {
		return err
	}

	extra, err := c.app.extraArgs()
	if err != nil {
		return err
	}

	args, err := readToolArgs(c.ToolArgs)
	if err != nil {
		return err
	}

	r := mcpcli.NewRouter(c.app.logger())

	result, err := r.CallTool(context.Background(), key, prof, c.Args.Tool, args, mcpcli.CallOptions{ExtraArgs: extra})
	if err != nil {
		return err
	}

	return printJSON(result)
}

// shellCmd runs the interactive shell over one persistent transport.
type shellCmd struct {
	app *app
}

func (c *shellCmd) Execute(_ []string) error {
	key, prof, err := c.app.serverContext()
	if err != nil {
		return err
	}

	extra, err := c.app.extraArgs()
	if err != nil {
		return err
	}

	ctx := context.Background()
	r := mcpcli.NewRouter(c.app.logger())

	session, err := r.Connect(ctx, key, prof, mcpcli.CallOptions{ExtraArgs: extra})
	if err != nil {
		return err
	}

	defer func() { _ = session.Close() }()

	fmt.Printf("MCP Shell (%s)\n", key.Server)
	fmt.Println("Commands: call <tool> [json], list-tools, exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("mcp> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case line == "exit", line == "quit":
			fmt.Println("Goodbye!")

			return nil

		case line == "list-tools":
			result, err := session.ListTools(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)

				continue
			}

			_ = printJSON(result)

		case strings.HasPrefix(line, "call "):
			rest := strings.TrimPrefix(line, "call ")
			parts := strings.SplitN(rest, " ", 2)
			tool := parts[0]

			argJSON := "{}"
			if len(parts) == 2 {
				argJSON = parts[1]
			}

			args, err := readToolArgs(argJSON)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Invalid JSON args:", err)

				continue
			}

			result, err := session.CallTool(ctx, tool, args)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)

				continue
			}

			_ = printJSON(result)

		default:
			fmt.Fprintln(os.Stderr, "Usage: call <tool_name> [json_args] | list-tools | exit")
		}
	}

	fmt.Println("Goodbye!")

	return nil
}

// startDaemonCmd starts a background daemon for the server.
type startDaemonCmd struct {
	app *app
}

func (c *startDaemonCmd) Execute(_ []string) error {
	key, prof, err := c.app.serverContext()
	if err != nil {
		return err
	}

	extra, err := c.app.extraArgs()
	if err != nil {
		return err
	}

	sup := mcpcli.NewSupervisor(c.app.logger(), key, nil)

	info, err := sup.Start(context.Background(), prof, extra)
	if err != nil {
		return err
	}

	fmt.Printf("Daemon started (PID: %d)\n", info.PID)
	fmt.Printf("Socket: %s\n", info.Socket)

	return nil
}

// stopDaemonCmd stops the background daemon.
type stopDaemonCmd struct {
	app *app
}

func (c *stopDaemonCmd) Execute(_ []string) error {
	key, err := c.app.keyOnly()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sup := mcpcli.NewSupervisor(c.app.logger(), key, nil)

	status, err := sup.Status(ctx)
	if err != nil {
		return err
	}

	if status.State != mcpcli.DaemonRunning {
		fmt.Println("Daemon is not running")

		return sup.Stop(ctx)
	}

	if err := sup.Stop(ctx); err != nil {
		return err
	}

	fmt.Println("Daemon stopped")

	return nil
}

// daemonStatusCmd reports the daemon's state for this directory.
type daemonStatusCmd struct {
	app *app
}

func (c *daemonStatusCmd) Execute(_ []string) error {
	key, err := c.app.keyOnly()
	if err != nil {
		return err
	}

	sup := mcpcli.NewSupervisor(c.app.logger(), key, nil)

	fmt.Printf("Server: %s\n", key.Server)
	fmt.Printf("Profile: %s\n", sup.StatePaths().Root())

	status, err := sup.Status(context.Background())
	if err != nil {
		return err
	}

	switch status.State {
	case mcpcli.DaemonRunning:
		fmt.Println("Daemon is running")
		fmt.Printf("  PID: %d\n", status.PID)
		fmt.Printf("  Socket: %s\n", status.Socket)
	case mcpcli.DaemonStale:
		fmt.Println("Daemon is stale (process alive, socket unresponsive)")
		fmt.Printf("  PID: %d\n", status.PID)
	default:
		fmt.Println("Daemon is not running")
	}

	return nil
}
