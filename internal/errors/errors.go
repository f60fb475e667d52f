package errors

import (
	"errors"
	"fmt"
)

// MCPCLIError is the base interface for all mcp-cli errors.
type MCPCLIError interface {
	error
	IsMCPCLIError() bool
}

// Compile-time verification that all error types implement MCPCLIError.
var (
	_ MCPCLIError = (*SpawnError)(nil)
	_ MCPCLIError = (*HandshakeError)(nil)
	_ MCPCLIError = (*TransportError)(nil)
	_ MCPCLIError = (*DaemonStartError)(nil)
	_ MCPCLIError = (*ToolError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrEmptyCommand indicates a server profile with no command to run.
	ErrEmptyCommand = errors.New("server profile has empty command")

	// ErrTransportClosed indicates the message channel reached end of stream.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDaemonNotRunning indicates no daemon is running for the requested
	// directory and server.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrDaemonAlreadyRunning indicates a daemon is already running for the
	// requested directory and server.
	ErrDaemonAlreadyRunning = errors.New("daemon already running")

	// ErrDaemonUnhealthy indicates the daemon is alive but its backing
	// server transport has died.
	ErrDaemonUnhealthy = errors.New("daemon unhealthy: backing server transport died")

	// ErrUnsupportedDaemonMode indicates the server profile has
	// supports_daemon disabled.
	ErrUnsupportedDaemonMode = errors.New("server does not support daemon mode")
)

// SpawnError indicates the target server command could not be started.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn MCP server %v: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsMCPCLIError implements MCPCLIError.
func (e *SpawnError) IsMCPCLIError() bool { return true }

// HandshakeError indicates the server process started but protocol
// negotiation failed or the process exited before completing it.
type HandshakeError struct {
	Server string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("MCP handshake with %q failed: %v", e.Server, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsMCPCLIError implements MCPCLIError.
func (e *HandshakeError) IsMCPCLIError() bool { return true }

// TransportError indicates a channel I/O failure or malformed framing
// mid-session. The owning channel must be treated as dead.
type TransportError struct {
	// RawData holds the offending frame when the failure was a framing or
	// decode problem. Empty for plain I/O errors.
	RawData string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsMCPCLIError implements MCPCLIError.
func (e *TransportError) IsMCPCLIError() bool { return true }

// DaemonStartError indicates a daemon start was attempted but readiness was
// never reached. LogPath points at the daemon's log for postmortem.
type DaemonStartError struct {
	Server  string
	Dir     string
	LogPath string
	Err     error
}

func (e *DaemonStartError) Error() string {
	return fmt.Sprintf("failed to start daemon for %q in %s: %v (check %s)",
		e.Server, e.Dir, e.Err, e.LogPath)
}

func (e *DaemonStartError) Unwrap() error {
	return e.Err
}

// IsMCPCLIError implements MCPCLIError.
func (e *DaemonStartError) IsMCPCLIError() bool { return true }

// ToolError indicates the server executed the tool and reported a
// tool-level failure (isError result).
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

// IsMCPCLIError implements MCPCLIError.
func (e *ToolError) IsMCPCLIError() bool { return true }
