// Package state manages the on-disk daemon state for one (directory,
// server) pair.
//
// Each working directory and server name gets an independent state
// directory holding the daemon's pid record, its socket endpoint record,
// and its log file. The directory's absolute path is part of the daemon's
// identity: two working directories never share state, even for the same
// server name.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yonaka/mcp-cli/internal/profile"
)

// File names inside the state directory.
const (
	PIDFileName  = "daemon.pid"
	AddrFileName = "daemon.addr"
	LogFileName  = "daemon.log"
)

// Key identifies one daemon: the absolute working directory plus the
// server name. It is passed explicitly into every supervisor and router
// operation instead of relying on implicit process state.
type Key struct {
	Dir    string
	Server string
}

// NewKey builds a Key, resolving dir to an absolute path.
func NewKey(dir, server string) (Key, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Key{}, fmt.Errorf("resolve directory %q: %w", dir, err)
	}

	return Key{Dir: abs, Server: server}, nil
}

func (k Key) String() string {
	return k.Server + "@" + k.Dir
}

// State is the on-disk daemon state for one Key.
type State struct {
	key Key
}

// New creates a State handle for the given key. Nothing is touched on disk.
func New(key Key) *State {
	return &State{key: key}
}

// Key returns the identity this state belongs to.
func (s *State) Key() Key {
	return s.key
}

// Root returns the state directory path.
func (s *State) Root() string {
	return profile.Dir(s.key.Dir, s.key.Server)
}

// EnsureDir creates the state directory with owner-only permissions.
func (s *State) EnsureDir() error {
	if err := os.MkdirAll(s.Root(), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	return nil
}

// PIDPath returns the pid record path.
func (s *State) PIDPath() string {
	return filepath.Join(s.Root(), PIDFileName)
}

// AddrPath returns the socket endpoint record path.
func (s *State) AddrPath() string {
	return filepath.Join(s.Root(), AddrFileName)
}

// LogPath returns the daemon log file path.
func (s *State) LogPath() string {
	return filepath.Join(s.Root(), LogFileName)
}

// WritePID records the daemon's process id.
func (s *State) WritePID(pid int) error {
	if err := os.WriteFile(s.PIDPath(), []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	return nil
}

// ReadPID returns the recorded process id. os.IsNotExist on the wrapped
// error distinguishes "no record" from a corrupt one.
func (s *State) ReadPID() (int, error) {
	data, err := os.ReadFile(s.PIDPath())
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %q", s.PIDPath(), strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// WriteAddr records the daemon's socket endpoint.
func (s *State) WriteAddr(addr string) error {
	if err := os.WriteFile(s.AddrPath(), []byte(addr), 0o600); err != nil {
		return fmt.Errorf("write addr file: %w", err)
	}

	return nil
}

// ReadAddr returns the recorded socket endpoint.
func (s *State) ReadAddr() (string, error) {
	data, err := os.ReadFile(s.AddrPath())
	if err != nil {
		return "", fmt.Errorf("read addr file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// SocketDir returns the directory sockets are created in. Sockets live
// under the system temp directory rather than the state directory because
// unix socket paths are length-limited and working directories are not.
func SocketDir() string {
	return filepath.Join(os.TempDir(), ".mcp")
}

// SocketPath returns the socket path for a daemon with the given pid.
// The pid suffix keeps restarted daemons from colliding on the same path.
func (s *State) SocketPath(pid int) string {
	return filepath.Join(SocketDir(), fmt.Sprintf("%s-%d.sock", profile.SanitizeName(s.key.Server), pid))
}

// HasPID reports whether a pid record exists.
func (s *State) HasPID() bool {
	_, err := os.Stat(s.PIDPath())

	return err == nil
}

// Clear removes the pid record, the addr record, and the socket file.
// The log file survives for postmortem after crashes.
func (s *State) Clear() error {
	if addr, err := s.ReadAddr(); err == nil && addr != "" {
		_ = os.Remove(addr)
	}

	_ = os.Remove(s.PIDPath())
	_ = os.Remove(s.AddrPath())

	return nil
}

// Remove clears all records including the log and deletes the state
// directory when nothing else lives in it.
func (s *State) Remove() error {
	if err := s.Clear(); err != nil {
		return err
	}

	_ = os.Remove(s.LogPath())
	// Leave the directory alone if the server keeps its own data in it.
	_ = os.Remove(s.Root())

	return nil
}
