package mcpcli

import (
	"log/slog"

	"github.com/yonaka/mcp-cli/internal/router"
	"github.com/yonaka/mcp-cli/internal/state"
)

// Key identifies one daemon: the absolute working directory plus the
// server name. Every supervisor and router operation takes it explicitly.
type Key = state.Key

// NewKey builds a Key, resolving dir to an absolute path.
func NewKey(dir, server string) (Key, error) {
	return state.NewKey(dir, server)
}

// Router surfaces a uniform call/list-tools interface, preferring a
// running daemon when the profile allows one and falling back to a fresh
// subprocess transport otherwise.
type Router = router.Router

// CallOptions configures one routed operation.
type CallOptions = router.Options

// Session is a live direct connection to one server, for issuing several
// calls over a single transport.
type Session = router.Session

// NewRouter creates a router.
func NewRouter(log *slog.Logger) *Router {
	return router.New(log)
}
