package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/profile"
	"github.com/yonaka/mcp-cli/internal/protocol"
	"github.com/yonaka/mcp-cli/internal/state"
	"github.com/yonaka/mcp-cli/internal/transport"
)

// StatusMethod is the socket request answered by the daemon itself,
// without touching the backing server transport.
const StatusMethod = "daemon/status"

// CodeDaemonUnhealthy is the JSON-RPC error code the daemon uses when its
// backing transport has died.
const CodeDaemonUnhealthy = -32010

// StatusResult is the payload of a successful status probe.
type StatusResult struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid"`
	SocketPath string `json:"socketPath"`
	Server     string `json:"server"`
}

// Options configures a daemon run.
type Options struct {
	// ExtraArgs overrides the profile's default_args wholesale when non-nil.
	ExtraArgs []string
}

// pendingCall is one in-flight client request inside the daemon.
type pendingCall struct {
	ConnID   string
	ClientID json.RawMessage
	Method   string
	Started  time.Time
}

// Daemon is the long-running half of daemon mode.
type Daemon struct {
	log  *slog.Logger
	key  state.Key
	st   *state.State
	back *transport.Subprocess

	listener net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	callsMu sync.Mutex
	calls   map[string]*pendingCall

	unhealthy atomic.Bool
}

// Run starts the backing transport, binds the socket, and serves clients
// until the context is cancelled, a termination signal arrives, or the
// backing transport dies.
//
// On a backing transport failure Run cleans up the state records (keeping
// the log for postmortem) and returns ErrDaemonUnhealthy so the process
// exits non-zero. On graceful shutdown it cleans up and returns nil.
func Run(ctx context.Context, log *slog.Logger, key state.Key, prof *profile.ServerProfile, opts Options) error {
	log = log.With("component", "daemon", "server", key.Server, "dir", key.Dir)

	st := state.New(key)
	if err := st.EnsureDir(); err != nil {
		return err
	}

	back := transport.NewSubprocess(log, key.Server, key.Dir, prof, transport.Options{
		ExtraArgs: opts.ExtraArgs,
	})
	if err := back.Start(ctx); err != nil {
		return err
	}

	defer func() { _ = back.Close() }()

	listener, sockPath, err := bindSocket(st)
	if err != nil {
		return err
	}

	if err := st.WriteAddr(sockPath); err != nil {
		_ = listener.Close()
		_ = os.Remove(sockPath)

		return err
	}

	log.Info("Daemon listening", "socket", sockPath, "backing_pid", back.PID())

	d := &Daemon{
		log:      log,
		key:      key,
		st:       st,
		back:     back,
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
		calls:    make(map[string]*pendingCall, 8),
	}

	runErr := d.serve(ctx)

	// State cleanup so subsequent invocations see "not running" instead of
	// a stale daemon. The log file stays.
	_ = st.Clear()

	return runErr
}

// bindSocket creates the socket directory and listener with owner-only
// permissions.
func bindSocket(st *state.State) (net.Listener, string, error) {
	if err := os.MkdirAll(state.SocketDir(), 0o700); err != nil {
		return nil, "", fmt.Errorf("create socket directory: %w", err)
	}

	sockPath := st.SocketPath(os.Getpid())

	// Clean up a leftover socket from a previous run with a recycled pid.
	_ = os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, "", fmt.Errorf("bind unix socket %s: %w", sockPath, err)
	}

	if err := unix.Chmod(sockPath, 0o600); err != nil {
		_ = listener.Close()

		return nil, "", fmt.Errorf("set socket permissions: %w", err)
	}

	return listener, sockPath, nil
}

// serve runs the accept loop, the signal waiter, and the backing transport
// watchdog until one of them ends the daemon.
func (d *Daemon) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, unix.SIGTERM, unix.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Watchdog: a dead backing transport ends the daemon. Failing loudly
	// beats serving stale or wrong responses.
	g.Go(func() error {
		select {
		case <-d.back.Done():
			d.unhealthy.Store(true)
			d.log.Error("Backing transport died, shutting down",
				"error", d.back.FatalError(), "pending_calls", d.pendingCount())

			return fmt.Errorf("%w: %v", errors.ErrDaemonUnhealthy, d.back.FatalError())

		case <-ctx.Done():
			d.log.Info("Shutdown signal received")

			return nil
		}
	})

	// Closer: unblock the accept loop and all connection reads. In-flight
	// calls get a short grace period so their responses (including the
	// unhealthy error envelopes) reach the clients before the sockets go.
	g.Go(func() error {
		<-ctx.Done()

		_ = d.listener.Close()

		d.waitCallsDrained(2 * time.Second)

		d.connsMu.Lock()
		for c := range d.conns {
			_ = c.Close()
		}
		d.connsMu.Unlock()

		return nil
	})

	// Accept loop: one handler goroutine per client connection.
	g.Go(func() error {
		for {
			conn, err := d.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return fmt.Errorf("accept: %w", err)
				}
			}

			d.trackConn(conn)

			g.Go(func() error {
				defer d.untrackConn(conn)
				d.handleConn(ctx, conn)

				return nil
			})
		}
	})

	return g.Wait()
}

// handleConn serves one client connection: a sequence of single
// request/response exchanges, ended by client disconnect.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	connID := ulid.Make().String()
	log := d.log.With("conn_id", connID)

	log.Debug("Client connected")

	ch := channel.New(conn, conn)

	for {
		msg, err := ch.Receive()
		if err != nil {
			log.Debug("Client disconnected", "error", err)

			return
		}

		var req protocol.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			d.respondError(ch, nil, -32700, fmt.Sprintf("invalid request: %v", err))

			continue
		}

		if req.Method == StatusMethod {
			d.respondStatus(ch, &req)

			continue
		}

		if d.unhealthy.Load() {
			d.respondError(ch, req.ID, CodeDaemonUnhealthy, errors.ErrDaemonUnhealthy.Error())

			return
		}

		d.forward(ctx, log, ch, connID, &req)
	}
}

// forward relays one client request onto the shared backing transport and
// writes the matching response back to the client.
//
// The backing protocol conn correlates by its own generated id; the
// client's original id is restored in the reply envelope. If the client
// disconnects while the call is in flight, the eventual result is
// discarded when the response write fails.
func (d *Daemon) forward(ctx context.Context, log *slog.Logger, ch *channel.Channel, connID string, req *protocol.Request) {
	call := &pendingCall{
		ConnID:   connID,
		ClientID: req.ID,
		Method:   req.Method,
		Started:  time.Now(),
	}

	d.callsMu.Lock()
	d.calls[connID] = call
	d.callsMu.Unlock()

	defer func() {
		d.callsMu.Lock()
		delete(d.calls, connID)
		d.callsMu.Unlock()
	}()

	log.Debug("Forwarding request", "method", req.Method)

	result, err := d.back.Call(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *protocol.RPCError
		if stderrors.As(err, &rpcErr) {
			d.respond(ch, &protocol.Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})

			return
		}

		// Anything else from the shared transport means it is no longer
		// trustworthy; the watchdog is already shutting the daemon down.
		log.Warn("Backing call failed", "method", req.Method, "error", err)
		d.respondError(ch, req.ID, CodeDaemonUnhealthy, errors.ErrDaemonUnhealthy.Error())

		return
	}

	d.respond(ch, &protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// respondStatus answers the status probe locally.
func (d *Daemon) respondStatus(ch *channel.Channel, req *protocol.Request) {
	result, err := json.Marshal(&StatusResult{
		Running:    true,
		PID:        os.Getpid(),
		SocketPath: d.st.SocketPath(os.Getpid()),
		Server:     d.key.Server,
	})
	if err != nil {
		d.respondError(ch, req.ID, -32603, err.Error())

		return
	}

	d.respond(ch, &protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (d *Daemon) respond(ch *channel.Channel, resp *protocol.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		d.log.Error("Failed to marshal response", "error", err)

		return
	}

	if err := ch.Send(data); err != nil {
		// Client went away; the result is simply discarded.
		d.log.Debug("Failed to write response to client", "error", err)
	}
}

func (d *Daemon) respondError(ch *channel.Channel, id json.RawMessage, code int, msg string) {
	d.respond(ch, &protocol.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &protocol.RPCError{Code: code, Message: msg},
	})
}

func (d *Daemon) trackConn(conn net.Conn) {
	d.connsMu.Lock()
	d.conns[conn] = struct{}{}
	d.connsMu.Unlock()
}

func (d *Daemon) untrackConn(conn net.Conn) {
	d.connsMu.Lock()
	delete(d.conns, conn)
	d.connsMu.Unlock()

	_ = conn.Close()
}

// waitCallsDrained polls until no calls are in flight or the bound is hit.
func (d *Daemon) waitCallsDrained(bound time.Duration) {
	deadline := time.Now().Add(bound)

	for time.Now().Before(deadline) {
		if d.pendingCount() == 0 {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func (d *Daemon) pendingCount() int {
	d.callsMu.Lock()
	defer d.callsMu.Unlock()

	return len(d.calls)
}
