// mcp-cli is a unified command-line client for MCP servers.
//
// Server profiles live in ~/.claude/scripts/mcp-servers.json. One binary
// talks to any configured server, either by spawning it fresh per call or
// through a background daemon holding a persistent connection.
//
//	mcp-cli list-servers
//	mcp-cli --server playwright list-tools
//	mcp-cli --server playwright call browser_navigate --args '{"url":"https://example.com"}'
//	mcp-cli --server playwright start-daemon
//	mcp-cli --server playwright daemon-status
//	mcp-cli --server playwright stop-daemon
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	mcpcli "github.com/yonaka/mcp-cli"
)

func main() {
	// The hidden daemon entry bypasses normal flag parsing, exactly so a
	// change to the user-facing CLI can never break running daemons.
	if len(os.Args) > 1 && os.Args[1] == mcpcli.InternalDaemonCommand {
		if err := runDaemonEntry(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "daemon error:", err)
			os.Exit(1)
		}

		return
	}

	app := newApp()

	parser := flags.NewParser(&app.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "Unified MCP CLI"
	parser.LongDescription = "Generic MCP protocol client with daemon mode for configured server profiles."

	addCommands(parser, app)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if ok := asFlagsError(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)

			return
		}

		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func asFlagsError(err error, target **flags.Error) bool {
	fe, ok := err.(*flags.Error)
	if ok {
		*target = fe
	}

	return ok
}

func addCommands(parser *flags.Parser, app *app) {
	must := func(_ *flags.Command, err error) {
		if err != nil {
			panic(err)
		}
	}

	must(parser.AddCommand("list-servers", "List all configured servers", "", &listServersCmd{app: app}))
	must(parser.AddCommand("list-tools", "List all available tools from the server", "", &listToolsCmd{app: app}))
	must(parser.AddCommand("call", "Call any MCP tool", "", &callCmd{app: app}))
	must(parser.AddCommand("shell", "Interactive shell mode", "", &shellCmd{app: app}))
	must(parser.AddCommand("start-daemon", "Start background daemon (requires supports_daemon: true)", "", &startDaemonCmd{app: app}))
	must(parser.AddCommand("stop-daemon", "Stop background daemon", "", &stopDaemonCmd{app: app}))
	must(parser.AddCommand("daemon-status", "Check daemon status", "", &daemonStatusCmd{app: app}))
}
