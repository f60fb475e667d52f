package mcpcli

import (
	"context"
	"log/slog"

	"github.com/yonaka/mcp-cli/internal/daemon"
)

// Supervisor controls the daemon lifecycle for one Key: start, stop, and
// status, invoked from short-lived client runs.
type Supervisor = daemon.Supervisor

// DaemonStatus is the supervisor's view of a daemon.
type DaemonStatus = daemon.StatusInfo

// SpawnFunc is the detach-and-run capability the supervisor depends on.
type SpawnFunc = daemon.SpawnFunc

// Daemon lifecycle states reported by Supervisor.Status.
const (
	DaemonNotRunning = daemon.StateNotRunning
	DaemonRunning    = daemon.StateRunning
	DaemonStale      = daemon.StateStale
)

// InternalDaemonCommand is the hidden first argument the CLI binary
// recognizes to run as a daemon process.
const InternalDaemonCommand = daemon.InternalDaemonCommand

// NewSupervisor creates a supervisor for the given key. A nil spawn uses
// the default, which re-executes the current binary detached from the
// session.
func NewSupervisor(log *slog.Logger, key Key, spawn SpawnFunc) *Supervisor {
	return daemon.NewSupervisor(log, key, spawn)
}

// RunDaemon runs the daemon process for the given key: one persistent
// transport to the server, a local socket serving concurrent clients.
// This is the entry point behind InternalDaemonCommand; it blocks until
// shutdown.
func RunDaemon(ctx context.Context, log *slog.Logger, key Key, prof *ServerProfile, extraArgs []string) error {
	return daemon.Run(ctx, log, key, prof, daemon.Options{ExtraArgs: extraArgs})
}

// DaemonStatusResult is the payload answered by a daemon's status probe.
type DaemonStatusResult = daemon.StatusResult
