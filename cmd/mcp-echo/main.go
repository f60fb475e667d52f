// mcp-echo is a minimal MCP server used to exercise mcp-cli.
//
// It speaks MCP over stdio and exposes three tools: echo returns its
// input, fail reports a tool-level error, and pid returns the server's
// process id (handy for checking that sequential daemon calls hit the
// same backing process).
//
// Profile example:
//
//	{
//	  "echo-server": {
//	    "command": ["mcp-echo"],
//	    "supports_daemon": true,
//	    "description": "Echo server for testing"
//	  }
//	}
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoArgs struct {
	Text string `json:"text"`
}

type failArgs struct {
	Message string `json:"message"`
}

type pidArgs struct{}

func main() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-echo",
		Version: "1.0.0",
	}, nil)

	registerTools(server)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo the given text back to the caller.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string", Description: "text to echo back"},
			},
			Required: []string{"text"},
		},
	}, func(_ context.Context, _ *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
		return textResult(args.Text), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fail",
		Description: "Always fail with the given message, as a tool-level error.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"message": {Type: "string", Description: "error message to report"},
			},
		},
	}, func(_ context.Context, _ *mcp.CallToolRequest, args failArgs) (*mcp.CallToolResult, any, error) {
		msg := args.Message
		if msg == "" {
			msg = "tool failed"
		}

		result := textResult(msg)
		result.IsError = true

		return result, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pid",
		Description: "Return this server process's id.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ pidArgs) (*mcp.CallToolResult, any, error) {
		return textResult(fmt.Sprintf("%d", os.Getpid())), nil, nil
	})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
