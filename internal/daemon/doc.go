// Package daemon implements daemon mode: a long-lived background process
// holding one persistent transport to an MCP server, a local socket
// protocol for short-lived clients, and the supervisor that starts, stops,
// and inspects daemons from those clients.
//
// The daemon owns exactly one subprocess transport to the target server.
// Each accepted client connection is handled independently; requests from
// concurrent clients are correlated against the shared transport by
// generated ids, so no client ever observes another client's response. A
// status probe is answered by the daemon itself without touching the
// backing transport.
//
// When the backing transport dies, the daemon fails every pending call,
// removes its state records, and exits rather than serving further
// requests in a degraded state.
package daemon
