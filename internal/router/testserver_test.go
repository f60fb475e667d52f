package router

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/yonaka/mcp-cli/internal/channel"
	"github.com/yonaka/mcp-cli/internal/protocol"
)

// serverModeEnv switches the test binary into MCP server mode when the
// router spawns it as a direct transport or as a daemon's backing server.
const serverModeEnv = "MCP_ROUTER_TEST_MODE"

func TestMain(m *testing.M) {
	if os.Getenv(serverModeEnv) == "echo" {
		runStubServer()
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func runStubServer() {
	ch := channel.New(os.Stdin, os.Stdout)

	for {
		msg, err := ch.Receive()
		if err != nil {
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(msg, &req); err != nil || req.ID == nil {
			continue
		}

		resp := answerStub(&req)

		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}

		if err := ch.Send(data); err != nil {
			return
		}
	}
}

func answerStub(req *protocol.Request) *protocol.Response {
	switch req.Method {
	case "initialize":
		return stubResult(req.ID, map[string]any{
			"protocolVersion": protocol.Version,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "stub", "version": "0.0.1"},
		})

	case "tools/list":
		return stubResult(req.ID, map[string]any{
			"tools": []map[string]any{{"name": "echo"}, {"name": "pid"}, {"name": "fail"}},
		})

	case "tools/call":
		var params struct {
			Name      string `json:"name"`
			Arguments struct {
				Text string `json:"text"`
			} `json:"arguments"`
		}

		_ = json.Unmarshal(req.Params, &params)

		switch params.Name {
		case "echo":
			return stubResult(req.ID, toolText(params.Arguments.Text, false))
		case "pid":
			return stubResult(req.ID, toolText(fmt.Sprintf("%d", os.Getpid()), false))
		case "fail":
			return stubResult(req.ID, toolText("deliberate failure", true))
		default:
			return &protocol.Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &protocol.RPCError{Code: -32602, Message: "unknown tool: " + params.Name},
			}
		}

	default:
		return &protocol.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &protocol.RPCError{Code: -32601, Message: "method not found: " + req.Method},
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
