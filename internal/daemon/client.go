package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/protocol"
)

// DialTimeout bounds connecting to a daemon socket.
const DialTimeout = 2 * time.Second

// ProbeTimeout bounds one status probe exchange.
const ProbeTimeout = 2 * time.Second

// Client is one short-lived connection to a running daemon's socket.
//
// A client issues calls sequentially, never pipelining; each Call is one
// atomic request/response exchange from the client's perspective.
type Client struct {
	conn net.Conn
	ch   *channel.Channel
}

// Dial connects to a daemon socket.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("unix", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon socket %s: %w", addr, err)
	}

	return &Client{
		conn: conn,
		ch:   channel.New(conn, conn),
	}, nil
}

// Call issues one request over the daemon connection and returns the raw
// result.
//
// A context deadline, when present, is applied to the socket I/O. A daemon
// that reports its backing transport dead yields ErrDaemonUnhealthy.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	id := ulid.Make().String()

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.ch.Send(data); err != nil {
		return nil, err
	}

	msg, err := c.ch.Receive()
	if err != nil {
		return nil, err
	}

	var resp protocol.Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, &errors.TransportError{RawData: string(msg), Err: fmt.Errorf("malformed daemon response: %w", err)}
	}

	if resp.ID != nil && protocol.IDKey(resp.ID) != id {
		return nil, &errors.TransportError{Err: fmt.Errorf("daemon response id mismatch: got %s", protocol.IDKey(resp.ID))}
	}

	if resp.Error != nil {
		if resp.Error.Code == CodeDaemonUnhealthy {
			return nil, fmt.Errorf("%w: %s", errors.ErrDaemonUnhealthy, resp.Error.Message)
		}

		return nil, resp.Error
	}

	return resp.Result, nil
}

// Status issues the status probe, which the daemon answers without
// touching its backing transport.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	result, err := c.Call(ctx, StatusMethod, nil)
	if err != nil {
		return nil, err
	}

	var status StatusResult
	if err := json.Unmarshal(result, &status); err != nil {
		return nil, fmt.Errorf("parse status result: %w", err)
	}

	return &status, nil
}

// Close closes the socket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
