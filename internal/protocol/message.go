package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the MCP protocol version negotiated during the handshake.
const Version = "2025-06-18"

// Client identification sent in the initialize request.
const (
	ClientName    = "mcp-cli"
	ClientVersion = "1.0.0"
)

// Request is a JSON-RPC 2.0 request or notification envelope.
//
// A notification is a Request with no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request envelope with the given string id.
func NewRequest(id, method string, params json.RawMessage) (*Request, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshal request id: %w", err)
	}

	return &Request{
		JSONRPC: "2.0",
		ID:      rawID,
		Method:  method,
		Params:  params,
	}, nil
}

// IDKey returns the correlation key for a raw JSON-RPC id.
//
// String ids map to their value; everything else maps to its canonical
// JSON text, so numeric ids correlate as long as the server echoes them
// with the same representation.
func IDKey(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	if s, ok := v.(string); ok {
		return s
	}

	return string(raw)
}
