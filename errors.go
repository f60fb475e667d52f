package mcpcli

import "github.com/yonaka/mcp-cli/internal/errors"

// Re-export error types from internal package

// SpawnError indicates the target server command could not be started.
type SpawnError = errors.SpawnError

// HandshakeError indicates protocol negotiation with the server failed.
type HandshakeError = errors.HandshakeError

// TransportError indicates a channel I/O failure or malformed framing.
type TransportError = errors.TransportError

// DaemonStartError indicates a daemon start never reached readiness.
type DaemonStartError = errors.DaemonStartError

// ToolError indicates a tool-level failure reported by the server.
type ToolError = errors.ToolError

// MCPCLIError is the base interface for all mcp-cli errors.
type MCPCLIError = errors.MCPCLIError

// Re-export sentinel errors from internal package.
var (
	// ErrEmptyCommand indicates a server profile with no command to run.
	ErrEmptyCommand = errors.ErrEmptyCommand

	// ErrTransportClosed indicates the message channel reached end of stream.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrDaemonNotRunning indicates no daemon is running for the key.
	ErrDaemonNotRunning = errors.ErrDaemonNotRunning

	// ErrDaemonAlreadyRunning indicates a daemon is already running for the key.
	ErrDaemonAlreadyRunning = errors.ErrDaemonAlreadyRunning

	// ErrDaemonUnhealthy indicates the daemon's backing transport died.
	ErrDaemonUnhealthy = errors.ErrDaemonUnhealthy

	// ErrUnsupportedDaemonMode indicates the profile forbids daemon use.
	ErrUnsupportedDaemonMode = errors.ErrUnsupportedDaemonMode
)
