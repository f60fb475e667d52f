package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/protocol"
)

// serverModeEnv switches the test binary into MCP server mode when it is
// re-executed as a subprocess by the tests in this package.
const serverModeEnv = "MCP_TRANSPORT_TEST_MODE"

func TestMain(m *testing.M) {
	switch os.Getenv(serverModeEnv) {
	case "echo":
		runStubServer()
		os.Exit(0)
	case "exit":
		// Pretend to be a server that dies before speaking MCP.
		os.Exit(0)
	}

	os.Exit(m.Run())
}

// runStubServer speaks just enough MCP over stdio to exercise the
// transport: handshake, tools/list, and a handful of tools.
func runStubServer() {
	fmt.Fprintln(os.Stderr, "stub server starting")

	ch := channel.New(os.Stdin, os.Stdout)

	for {
		msg, err := ch.Receive()
		if err != nil {
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}

		if req.ID == nil {
			// Notification; nothing to answer.
			continue
		}

		resp := handleStubRequest(&req)

		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}

		if err := ch.Send(data); err != nil {
			return
		}
	}
}

func handleStubRequest(req *protocol.Request) *protocol.Response {
	switch req.Method {
	case "initialize":
		return stubResult(req.ID, map[string]any{
			"protocolVersion": protocol.Version,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "stub", "version": "0.0.1"},
		})

	case "tools/list":
		return stubResult(req.ID, map[string]any{
			"tools": []map[string]any{
				{"name": "echo", "description": "echo text back"},
				{"name": "pid", "description": "report server pid"},
				{"name": "fail", "description": "always fail"},
				{"name": "die", "description": "exit without responding"},
			},
		})

	case "tools/call":
		return stubToolCall(req)

	default:
		return &protocol.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &protocol.RPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

func stubToolCall(req *protocol.Request) *protocol.Response {
	var params struct {
		Name      string `json:"name"`
		Arguments struct {
			Text string `json:"text"`
		} `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &protocol.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &protocol.RPCError{Code: -32602, Message: err.Error()},
		}
	}

	switch params.Name {
	case "echo":
		return stubResult(req.ID, toolText(params.Arguments.Text, false))
	case "pid":
		return stubResult(req.ID, toolText(fmt.Sprintf("%d", os.Getpid()), false))
	case "fail":
		return stubResult(req.ID, toolText("deliberate failure", true))
	case "die":
		os.Exit(1)

		return nil
	default:
		return &protocol.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &protocol.RPCError{Code: -32602, Message: "unknown tool: " + params.Name},
		}
	}
}

func toolText(text string, isError bool) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	}
}

func stubResult(id json.RawMessage, result any) *protocol.Response {
	data, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}

	return &protocol.Response{JSONRPC: "2.0", ID: id, Result: data}
}
