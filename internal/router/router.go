// Package router picks the transport for each client operation.
//
// The router prefers a running daemon when the profile allows one and the
// daemon appears healthy, and falls back to a fresh subprocess transport
// otherwise. The fallback happens at most once per call; the router never
// starts a daemon on behalf of a plain call.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yonaka/mcp-cli/internal/daemon"
	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/profile"
	"github.com/yonaka/mcp-cli/internal/state"
	"github.com/yonaka/mcp-cli/internal/transport"
)

// Options configures one routed operation.
type Options struct {
	// ExtraArgs overrides the profile's default_args wholesale when
	// non-nil (direct transport only; a running daemon already has its
	// own argument list).
	ExtraArgs []string

	// Stderr receives the server's stderr lines on the direct path.
	Stderr func(string)
}

// Router surfaces a uniform call/list-tools interface over the two
// transports.
type Router struct {
	log *slog.Logger
}

// New creates a router.
func New(log *slog.Logger) *Router {
	return &Router{log: log.With("component", "router")}
}

// ListTools returns the server's tool list.
func (r *Router) ListTools(ctx context.Context, key state.Key, prof *profile.ServerProfile, opts Options) (json.RawMessage, error) {
	return r.call(ctx, key, prof, "tools/list", json.RawMessage(`{}`), opts)
}

// CallTool invokes one tool and returns its result payload. Tool-level
// failures (isError results) surface as ToolError.
func (r *Router) CallTool(ctx context.Context, key state.Key, prof *profile.ServerProfile, tool string, args json.RawMessage, opts Options) (json.RawMessage, error) {
	params, err := toolCallParams(tool, args)
	if err != nil {
		return nil, err
	}

	result, err := r.call(ctx, key, prof, "tools/call", params, opts)
	if err != nil {
		return nil, err
	}

	return result, checkToolResult(tool, result)
}

// call routes one method invocation: daemon first when permitted and
// healthy, otherwise (or on daemon failure) a fresh subprocess transport.
func (r *Router) call(ctx context.Context, key state.Key, prof *profile.ServerProfile, method string, params json.RawMessage, opts Options) (json.RawMessage, error) {
	if prof.SupportsDaemon {
		if result, tried, err := r.callViaDaemon(ctx, key, method, params); tried {
			if err == nil {
				return result, nil
			}

			r.log.Warn("Daemon call failed, falling back to direct transport",
				"server", key.Server, "error", err)
		}
	}

	return r.callDirect(ctx, key, prof, method, params, opts)
}

// callViaDaemon attempts the exchange through a running daemon. tried
// reports whether a daemon exchange was actually attempted; when false
// the daemon was not running and no fallback has been burned.
func (r *Router) callViaDaemon(ctx context.Context, key state.Key, method string, params json.RawMessage) (result json.RawMessage, tried bool, err error) {
	sup := daemon.NewSupervisor(r.log, key, nil)

	status, err := sup.Status(ctx)
	if err != nil || status.State != daemon.StateRunning {
		return nil, false, nil
	}

	r.log.Debug("Routing through daemon", "server", key.Server, "pid", status.PID)

	client, err := daemon.Dial(status.Socket)
	if err != nil {
		return nil, true, err
	}

	defer func() { _ = client.Close() }()

	result, err = client.Call(ctx, method, params)

	return result, true, err
}

// callDirect performs one exchange over a fresh subprocess transport.
func (r *Router) callDirect(ctx context.Context, key state.Key, prof *profile.ServerProfile, method string, params json.RawMessage, opts Options) (json.RawMessage, error) {
	t := transport.NewSubprocess(r.log, key.Server, key.Dir, prof, transport.Options{
		ExtraArgs: opts.ExtraArgs,
		Stderr:    opts.Stderr,
	})

	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	defer func() { _ = t.Close() }()

	return t.Call(ctx, method, params)
}

// Connect starts a direct session for issuing several calls over one
// transport (the interactive shell's mode). Daemons are never used for
// sessions.
func (r *Router) Connect(ctx context.Context, key state.Key, prof *profile.ServerProfile, opts Options) (*Session, error) {
	t := transport.NewSubprocess(r.log, key.Server, key.Dir, prof, transport.Options{
		ExtraArgs: opts.ExtraArgs,
		Stderr:    opts.Stderr,
	})

	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	return &Session{t: t}, nil
}

// Session is a live direct connection to one server.
type Session struct {
	t *transport.Subprocess
}

// ListTools returns the server's tool list.
func (s *Session) ListTools(ctx context.Context) (json.RawMessage, error) {
	return s.t.Call(ctx, "tools/list", json.RawMessage(`{}`))
}

// CallTool invokes one tool over the session.
func (s *Session) CallTool(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	params, err := toolCallParams(tool, args)
	if err != nil {
		return nil, err
	}

	result, err := s.t.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	return result, checkToolResult(tool, result)
}

// Close terminates the session's server process.
func (s *Session) Close() error {
	return s.t.Close()
}

// toolCallParams builds tools/call params without touching the argument
// payload.
func toolCallParams(tool string, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	name, err := json.Marshal(tool)
	if err != nil {
		return nil, fmt.Errorf("marshal tool name: %w", err)
	}

	params, err := json.Marshal(map[string]json.RawMessage{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tool call params: %w", err)
	}

	return params, nil
}

// checkToolResult surfaces isError tool results as ToolError, using the
// first text content item as the message.
func checkToolResult(tool string, result json.RawMessage) error {
	var probe struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.Unmarshal(result, &probe); err != nil || !probe.IsError {
		return nil
	}

	msg := "tool execution failed"

	for _, c := range probe.Content {
		if c.Text != "" {
			msg = c.Text

			break
		}
	}

	return &errors.ToolError{Tool: tool, Message: msg}
}
