// Package channel implements newline-delimited JSON message framing over a
// byte stream.
//
// A Channel wraps one bidirectional stream (a subprocess's pipes or a
// connected socket) and exchanges complete protocol messages: Send writes
// one self-delimited message, Receive blocks until one complete message is
// available. A Channel is not self-healing: any I/O or framing error is
// fatal for the channel and the owner must discard it.
package channel

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/yonaka/mcp-cli/internal/errors"
)

// MaxMessageSize is the maximum size of one framed message.
const MaxMessageSize = 1024 * 1024 // 1MB

// Channel frames individual protocol messages over a byte stream.
//
// Send is safe for concurrent use. Receive must only be called from a
// single goroutine (the owner's read loop).
type Channel struct {
	w       io.Writer
	scanner *bufio.Scanner

	writeMu sync.Mutex
}

// New creates a Channel over the given reader and writer halves.
func New(r io.Reader, w io.Writer) *Channel {
	scanner := bufio.NewScanner(r)
	// Set large buffer for big messages
	buf := make([]byte, MaxMessageSize)
	scanner.Buffer(buf, MaxMessageSize)

	return &Channel{
		w:       w,
		scanner: scanner,
	}
}

// Send writes one complete message followed by the frame delimiter.
//
// The message must not contain a newline; callers pass single-line JSON
// produced by encoding/json.
func (c *Channel) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Append delimiter with an explicit copy to avoid mutating the caller's
	// backing array if the slice has spare capacity.
	framed := make([]byte, len(msg)+1)
	copy(framed, msg)
	framed[len(msg)] = '\n'

	if _, err := c.w.Write(framed); err != nil {
		return &errors.TransportError{Err: fmt.Errorf("write message: %w", err)}
	}

	return nil
}

// Receive blocks until one complete message is available and returns it.
//
// The returned slice is a copy and remains valid after subsequent calls.
// End of stream yields a TransportError wrapping ErrTransportClosed;
// oversized or torn frames yield a TransportError with the scanner's error.
func (c *Channel) Receive() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, &errors.TransportError{Err: fmt.Errorf("read message: %w", err)}
		}

		return nil, &errors.TransportError{Err: errors.ErrTransportClosed}
	}

	line := c.scanner.Bytes()
	msg := make([]byte, len(line))
	copy(msg, line)

	return msg, nil
}
