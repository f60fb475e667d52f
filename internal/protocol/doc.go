// Package protocol implements the JSON-RPC message layer for MCP servers.
//
// The protocol package provides a Conn that manages request/response
// correlation over a message channel. Requests carry generated unique ids;
// a read loop routes each incoming response to the caller waiting on that
// id, so multiple calls may be in flight on one channel without responses
// ever being attributed to the wrong caller.
//
// The Conn handles:
//   - Sending requests with unique ids and awaiting the matching response
//   - Sending notifications (no id, no response)
//   - The MCP initialize handshake
//   - Broadcasting transport death to all waiters
//
// Example usage:
//
//	conn := protocol.NewConn(log, ch)
//	conn.Start()
//
//	if err := conn.Initialize(ctx); err != nil { ... }
//	result, err := conn.Call(ctx, "tools/list", nil)
package protocol
