// Package errors defines error types for mcp-cli.
//
// This package provides structured error types that wrap the failure
// scenarios of spawning MCP servers, speaking the protocol, and managing
// daemons. All error types support error unwrapping and can be checked
// using errors.Is and errors.As.
package errors
