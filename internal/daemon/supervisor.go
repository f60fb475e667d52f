package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/profile"
	"github.com/yonaka/mcp-cli/internal/state"
)

// InternalDaemonCommand is the hidden first argument the CLI binary
// recognizes to run as a daemon process.
const InternalDaemonCommand = "__daemon"

const (
	// startTimeout bounds the readiness wait after spawning a daemon.
	startTimeout = 5 * time.Second
	// startPoll is the readiness poll interval.
	startPoll = 100 * time.Millisecond
	// earlyExitCheck is when the spawned process is first checked for
	// having died instead of binding its socket.
	earlyExitCheck = 2 * time.Second

	// stopTimeout bounds the graceful termination wait before escalating
	// to SIGKILL.
	stopTimeout = 5 * time.Second
	// stopPoll is the termination poll interval.
	stopPoll = 500 * time.Millisecond
)

// State classifies a daemon's lifecycle for one (directory, server) key.
type State int

const (
	// StateNotRunning means no daemon state exists, or it was stale and
	// has been cleaned up.
	StateNotRunning State = iota
	// StateRunning means the recorded pid is alive and the socket answers
	// the status probe.
	StateRunning
	// StateStale means the pid is alive but the socket is unresponsive.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStale:
		return "stale"
	default:
		return "not running"
	}
}

// StatusInfo is the supervisor's view of a daemon.
type StatusInfo struct {
	State  State
	PID    int
	Socket string
}

// SpawnFunc detaches and runs a daemon process for the given key,
// returning the new pid. It is the platform-specific detach-and-run
// capability the supervisor depends on; tests substitute their own.
type SpawnFunc func(key state.Key, logPath string, extraArgs []string) (int, error)

// Supervisor controls the daemon lifecycle from short-lived client
// invocations: start, stop, and status for one (directory, server) key.
type Supervisor struct {
	log   *slog.Logger
	key   state.Key
	st    *state.State
	spawn SpawnFunc
}

// NewSupervisor creates a supervisor for the given key. A nil spawn uses
// DefaultSpawn, which re-executes the current binary detached from the
// session.
func NewSupervisor(log *slog.Logger, key state.Key, spawn SpawnFunc) *Supervisor {
	if spawn == nil {
		spawn = DefaultSpawn
	}

	return &Supervisor{
		log:   log.With("component", "supervisor", "server", key.Server, "dir", key.Dir),
		key:   key,
		st:    state.New(key),
		spawn: spawn,
	}
}

// StatePaths exposes the underlying state handle (for status display).
func (s *Supervisor) StatePaths() *state.State {
	return s.st
}

// Status reads the state records and probes the daemon.
//
// A recorded pid whose process is dead is stale state: it is cleaned up
// and reported NotRunning, never silently trusted. A live pid whose
// socket does not answer the probe is reported Stale.
func (s *Supervisor) Status(ctx context.Context) (StatusInfo, error) {
	if !s.st.HasPID() {
		return StatusInfo{State: StateNotRunning}, nil
	}

	pid, err := s.st.ReadPID()
	if err != nil {
		s.log.Warn("Corrupt pid record, cleaning up", "error", err)
		_ = s.st.Clear()

		return StatusInfo{State: StateNotRunning}, nil
	}

	if !processAlive(pid) {
		s.log.Info("Stale daemon state found, cleaning up", "pid", pid)
		_ = s.st.Clear()

		return StatusInfo{State: StateNotRunning}, nil
	}

	addr, err := s.st.ReadAddr()
	if err != nil {
		// Pid alive but no endpoint record: daemon still starting or wedged.
		return StatusInfo{State: StateStale, PID: pid}, nil
	}

	client, err := Dial(addr)
	if err != nil {
		return StatusInfo{State: StateStale, PID: pid, Socket: addr}, nil
	}

	defer func() { _ = client.Close() }()

	status, err := client.Status(ctx)
	if err != nil || !status.Running {
		return StatusInfo{State: StateStale, PID: pid, Socket: addr}, nil
	}

	return StatusInfo{State: StateRunning, PID: status.PID, Socket: status.SocketPath}, nil
}

// Start detaches a new daemon process and waits for its socket to be
// bound.
//
// Refuses with ErrUnsupportedDaemonMode when the profile forbids daemon
// use and ErrDaemonAlreadyRunning when a daemon is already up. Fails with
// DaemonStartError when the child exits early or readiness is never
// reached within the bounded wait.
func (s *Supervisor) Start(ctx context.Context, prof *profile.ServerProfile, extraArgs []string) (StatusInfo, error) {
	if !prof.SupportsDaemon {
		return StatusInfo{}, fmt.Errorf("%w: %q", errors.ErrUnsupportedDaemonMode, s.key.Server)
	}

	status, err := s.Status(ctx)
	if err != nil {
		return StatusInfo{}, err
	}

	if status.State == StateRunning {
		return status, fmt.Errorf("%w for %q in %s", errors.ErrDaemonAlreadyRunning, s.key.Server, s.key.Dir)
	}

	if status.State == StateStale {
		s.log.Warn("Replacing stale daemon state", "pid", status.PID)
		_ = s.st.Clear()
	}

	if err := s.st.EnsureDir(); err != nil {
		return StatusInfo{}, err
	}

	s.log.Info("Starting daemon")

	pid, err := s.spawn(s.key, s.st.LogPath(), extraArgs)
	if err != nil {
		return StatusInfo{}, &errors.DaemonStartError{
			Server: s.key.Server, Dir: s.key.Dir, LogPath: s.st.LogPath(), Err: err,
		}
	}

	if err := s.st.WritePID(pid); err != nil {
		return StatusInfo{}, err
	}

	sockPath := s.st.SocketPath(pid)
	if err := s.waitReady(pid, sockPath); err != nil {
		_ = s.st.Clear()

		return StatusInfo{}, &errors.DaemonStartError{
			Server: s.key.Server, Dir: s.key.Dir, LogPath: s.st.LogPath(), Err: err,
		}
	}

	s.log.Info("Daemon started", "pid", pid, "socket", sockPath)

	return StatusInfo{State: StateRunning, PID: pid, Socket: sockPath}, nil
}

// waitReady polls for the daemon's socket within the bounded start wait,
// failing early if the process dies.
func (s *Supervisor) waitReady(pid int, sockPath string) error {
	deadline := time.Now().Add(startTimeout)
	aliveCheck := time.Now().Add(earlyExitCheck)
	checked := false

	for time.Now().Before(deadline) {
		if _, err := os.Stat(sockPath); err == nil {
			return nil
		}

		if !checked && time.Now().After(aliveCheck) {
			checked = true

			if !processAlive(pid) {
				return fmt.Errorf("daemon process exited before binding its socket")
			}
		}

		time.Sleep(startPoll)
	}

	return fmt.Errorf("socket not bound within %s", startTimeout)
}

// Stop terminates a running daemon: SIGTERM, a bounded wait, then SIGKILL.
//
// Stop is idempotent: when no daemon is running it cleans up any leftover
// records and returns nil.
func (s *Supervisor) Stop(ctx context.Context) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}

	if status.State == StateNotRunning {
		s.log.Debug("No daemon to stop")
		_ = s.st.Remove()

		return nil
	}

	pid := status.PID

	s.log.Info("Stopping daemon", "pid", pid)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = s.st.Remove()
			s.log.Info("Daemon stopped")

			return nil
		}

		time.Sleep(stopPoll)
	}

	s.log.Warn("Daemon did not exit, escalating to SIGKILL", "pid", pid)

	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("kill daemon (pid %d): %w", pid, err)
	}

	_ = s.st.Remove()
	s.log.Info("Daemon stopped (forced)")

	return nil
}

// processAlive probes a pid with signal 0: no signal is delivered, but the
// call reports whether the process exists.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else.
	return err == unix.EPERM
}

// DefaultSpawn re-executes the current binary as a detached daemon
// process: its own session, stdin/stdout from the null device, stderr
// appended to the daemon log.
func DefaultSpawn(key state.Key, logPath string, extraArgs []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{InternalDaemonCommand, "--server", key.Server, "--dir", key.Dir}

	if extraArgs != nil {
		encoded, err := json.Marshal(extraArgs)
		if err != nil {
			return 0, fmt.Errorf("encode server args: %w", err)
		}

		args = append(args, "--server-args", string(encoded))
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create daemon log file: %w", err)
	}

	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(exe, args...)
	cmd.Dir = key.Dir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon process: %w", err)
	}

	pid := cmd.Process.Pid

	// The daemon outlives this invocation; don't hold the process handle.
	_ = cmd.Process.Release()

	return pid, nil
}
