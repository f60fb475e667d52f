package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/errors"
)

// Conn manages JSON-RPC request/response correlation over one message
// channel to an MCP server.
//
// Conn must be started with Start() before use. It owns a read loop that
// routes each incoming response to the caller waiting on its id. Requests
// from several goroutines may be in flight concurrently; each caller only
// ever receives the response carrying its own request id.
type Conn struct {
	log *slog.Logger
	ch  *channel.Channel

	// Request tracking
	pendingMu sync.Mutex
	pending   map[string]chan *Response

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConn creates a protocol conn over the given channel.
func NewConn(log *slog.Logger, ch *channel.Channel) *Conn {
	return &Conn{
		log:     log.With("component", "protocol"),
		ch:      ch,
		pending: make(map[string]chan *Response, 10),
		done:    make(chan struct{}),
	}
}

// Start begins reading messages from the channel and routing responses.
func (c *Conn) Start() {
	c.wg.Add(1)

	go c.readLoop()

	c.log.Debug("Protocol conn started")
}

// Stop shuts down the conn and waits for the read loop to exit.
//
// The underlying channel must be closed (or its process killed) by the
// owner first so the blocked Receive returns. Safe to call multiple times.
func (c *Conn) Stop() {
	c.closeDone()
	c.wg.Wait()
	c.log.Debug("Protocol conn stopped")
}

// closeDone safely closes the done channel exactly once.
func (c *Conn) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// setFatalError stores a fatal error and broadcasts to all waiters.
func (c *Conn) setFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the transport error that stopped the conn, if any.
func (c *Conn) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the conn stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Call sends a request and blocks until the matching response arrives.
//
// The request id is generated here; callers never supply one. Returns the
// raw result payload, the server's *RPCError for error responses, or a
// transport error if the channel died before the response arrived.
func (c *Conn) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := ulid.Make().String()

	c.log.Debug("Sending request", "request_id", id, "method", method)

	responseChan := make(chan *Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = responseChan
	c.pendingMu.Unlock()

	req, err := NewRequest(id, method, params)
	if err != nil {
		c.removePending(id)

		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)

		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.ch.Send(data); err != nil {
		c.removePending(id)

		return nil, err
	}

	select {
	case resp := <-responseChan:
		if resp.Error != nil {
			c.log.Warn("Request returned error", "request_id", id, "error", resp.Error.Message)

			return nil, resp.Error
		}

		c.log.Debug("Received response", "request_id", id)

		return resp.Result, nil

	case <-c.done:
		// Conn stopped (transport error or shutdown) - fail fast
		c.removePending(id)

		if err := c.FatalError(); err != nil {
			c.log.Warn("Transport died during request", "request_id", id, "error", err)

			return nil, err
		}

		return nil, &errors.TransportError{Err: errors.ErrTransportClosed}

	case <-ctx.Done():
		c.removePending(id)

		c.log.Debug("Request cancelled", "request_id", id)

		return nil, ctx.Err()
	}
}

// Notify sends a notification (a request with no id, expecting no response).
func (c *Conn) Notify(ctx context.Context, method string, params json.RawMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		if err := c.FatalError(); err != nil {
			return err
		}

		return &errors.TransportError{Err: errors.ErrTransportClosed}
	default:
	}

	c.log.Debug("Sending notification", "method", method)

	data, err := json.Marshal(&Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return c.ch.Send(data)
}

// Initialize performs the MCP handshake: an initialize request followed by
// the initialized notification. The conn is not usable for tool traffic
// before this completes.
func (c *Conn) Initialize(ctx context.Context) error {
	params, err := json.Marshal(map[string]any{
		"protocolVersion": Version,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    ClientName,
			"version": ClientVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal initialize params: %w", err)
	}

	if _, err := c.Call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := c.Notify(ctx, "notifications/initialized", json.RawMessage(`{}`)); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	c.log.Debug("MCP handshake complete", "protocol_version", Version)

	return nil
}

// removePending deletes a pending entry without delivering a response.
func (c *Conn) removePending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads messages from the channel and routes responses to waiting
// callers. It exits on any channel error, broadcasting the error to all
// in-flight calls.
func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.log.Debug("Protocol read loop stopped")

	for {
		msg, err := c.ch.Receive()
		if err != nil {
			c.setFatalError(err)

			return
		}

		var resp Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.setFatalError(&errors.TransportError{
				RawData: string(msg),
				Err:     fmt.Errorf("malformed message: %w", err),
			})

			return
		}

		c.route(msg, &resp)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// route delivers one parsed message to its waiting caller.
func (c *Conn) route(raw []byte, resp *Response) {
	// Server-initiated requests and notifications carry a method. The
	// relay serves no callbacks, so they are logged and dropped.
	var probe struct {
		Method string `json:"method"`
	}

	if err := json.Unmarshal(raw, &probe); err == nil && probe.Method != "" {
		c.log.Debug("Dropping server-initiated message", "method", probe.Method)

		return
	}

	if resp.ID == nil {
		c.log.Warn("Response missing id, dropping")

		return
	}

	key := IDKey(resp.ID)

	// Find and claim the pending request atomically
	c.pendingMu.Lock()

	pending, exists := c.pending[key]
	if exists {
		delete(c.pending, key)
	}

	c.pendingMu.Unlock()

	if !exists {
		// Late response for a caller that already went away: discard.
		c.log.Debug("No pending request for response", "request_id", key)

		return
	}

	// Channel is buffered, the waiting caller owns it: never blocks.
	pending <- resp
}
