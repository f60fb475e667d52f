package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/profile"
	"github.com/yonaka/mcp-cli/internal/protocol"
)

// HandshakeTimeout bounds the initialize exchange after spawn.
const HandshakeTimeout = 30 * time.Second

// Options configures a subprocess transport.
type Options struct {
	// ExtraArgs overrides the profile's default_args wholesale when
	// non-nil, even when empty.
	ExtraArgs []string

	// Stderr receives each line of the server's stderr output. When nil,
	// stderr lines are logged at debug level.
	Stderr func(string)
}

// Subprocess owns a spawned MCP server process and the protocol conn to it.
//
// The zero value is not usable; create with NewSubprocess and call Start
// before issuing calls. Close terminates the child process; the transport
// cannot be restarted.
type Subprocess struct {
	log    *slog.Logger
	server string
	dir    string
	prof   *profile.ServerProfile
	opts   Options

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	conn     *protocol.Conn
	stderrWg sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewSubprocess creates a transport for the given server profile.
//
// The server name and directory identify the instance in errors and
// template expansion; dir is also the child's working directory.
func NewSubprocess(log *slog.Logger, server, dir string, prof *profile.ServerProfile, opts Options) *Subprocess {
	return &Subprocess{
		log:    log.With("component", "subprocess_transport", "server", server),
		server: server,
		dir:    dir,
		prof:   prof,
		opts:   opts,
	}
}

// Start spawns the server process and performs the MCP handshake.
//
// Returns SpawnError if the command cannot be started and HandshakeError if
// the process starts but protocol negotiation fails or the process exits
// before completing it.
func (t *Subprocess) Start(ctx context.Context) error {
	argv, err := t.prof.Argv(t.server, t.dir, t.opts.ExtraArgs)
	if err != nil {
		return err
	}

	t.log.Info("Starting MCP server", "command", argv)

	//nolint:gosec // G204: launching the configured server command is the point
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = t.dir
	cmd.Env = t.prof.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.SpawnError{Command: argv, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	t.stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.SpawnError{Command: argv, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	t.stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.SpawnError{Command: argv, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	t.stderr = stderr

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start server process", "error", err)

		return &errors.SpawnError{Command: argv, Err: err}
	}

	t.cmd = cmd
	t.log.Info("MCP server process started", "pid", cmd.Process.Pid)

	t.stderrWg.Go(t.drainStderr)

	t.conn = protocol.NewConn(t.log, channel.New(stdout, stdin))
	t.conn.Start()

	hsCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	if err := t.conn.Initialize(hsCtx); err != nil {
		t.log.Error("MCP handshake failed", "error", err)
		_ = t.Close()

		return &errors.HandshakeError{Server: t.server, Err: err}
	}

	t.log.Debug("MCP server ready")

	return nil
}

// Call issues one request on the transport and returns its raw result.
func (t *Subprocess) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return t.conn.Call(ctx, method, params)
}

// Done returns a channel closed when the protocol conn stops, including
// when the server process dies mid-session.
func (t *Subprocess) Done() <-chan struct{} {
	return t.conn.Done()
}

// FatalError returns the transport error that killed the conn, if any.
func (t *Subprocess) FatalError() error {
	return t.conn.FatalError()
}

// PID returns the server process id, or 0 before Start.
func (t *Subprocess) PID() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}

	return t.cmd.Process.Pid
}

// Close terminates the server process and releases the channel.
//
// Safe to call multiple times or on an already-dead process.
func (t *Subprocess) Close() error {
	t.mu.Lock()

	if t.closing {
		t.mu.Unlock()

		return nil
	}

	t.closing = true
	t.mu.Unlock()

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing server process", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil {
			t.log.Debug("Kill failed (process may have exited)", "error", err)
		}
	}

	// Child death closes the pipe write ends, unblocking both readers.
	// All reads must finish before Wait releases the pipes.
	t.stderrWg.Wait()

	if t.conn != nil {
		t.conn.Stop()
	}

	if t.cmd != nil {
		_ = t.cmd.Wait()
	}

	return nil
}

// drainStderr forwards the server's stderr lines to the callback or log.
func (t *Subprocess) drainStderr() {
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		line := scanner.Text()

		if t.opts.Stderr != nil {
			t.opts.Stderr(line)

			continue
		}

		t.log.Debug("Server stderr", "line", line)
	}

	if err := scanner.Err(); err != nil {
		t.log.Debug("Stderr scanner error", "error", err)
	}
}
