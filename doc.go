// Package mcpcli provides a generic MCP (Model Context Protocol) client
// that works with any MCP server through configurable server profiles.
//
// The package is a thin wrapper around the MCP protocol: tool arguments
// are relayed byte-for-byte, with no validation or field conversion. The
// authoritative source of truth for a tool's arguments is the server's
// own inputSchema from tools/list.
//
// # Basic Usage
//
// Load the server configuration, then route operations through a Router:
//
//	cfg, err := mcpcli.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prof, err := cfg.Lookup("playwright")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, err := mcpcli.NewKey(".", "playwright")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := mcpcli.NewRouter(mcpcli.NopLogger())
//	result, err := r.CallTool(ctx, key, prof, "browser_navigate",
//	    json.RawMessage(`{"url":"https://example.com"}`), mcpcli.CallOptions{})
//
// # Daemon Mode
//
// Servers with supports_daemon enabled can be wrapped by a background
// daemon that holds one persistent connection and serves many short-lived
// invocations. The Router automatically prefers a running daemon and
// falls back to a fresh subprocess when none is available:
//
//	sup := mcpcli.NewSupervisor(log, key, nil)
//	info, err := sup.Start(ctx, prof, nil)
//	...
//	err = sup.Stop(ctx)
//
// Daemon state is keyed by (absolute working directory, server name); two
// directories never share a daemon, even for the same server.
package mcpcli
