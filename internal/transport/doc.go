// Package transport provides the subprocess-based transport to MCP servers.
//
// This package spawns a server's command as a child process, wires its
// standard streams into a message channel, and performs the MCP handshake
// before the transport is usable. It handles process lifecycle, stderr
// draining, and error classification.
package transport
