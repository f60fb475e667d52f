// Package profile defines MCP server profiles and their configuration file.
//
// A profile describes how to launch and treat one named server: its command,
// default arguments, environment overrides, and whether it may be wrapped by
// a daemon. Profiles are loaded from a JSON file mapping server names to
// profile objects and are never mutated by the rest of the system.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yonaka/mcp-cli/internal/errors"
)

// DefaultConfigRelPath is the config file location under the home directory.
const DefaultConfigRelPath = ".claude/scripts/mcp-servers.json"

// ConfigPathEnv overrides the config file location when set.
const ConfigPathEnv = "MCP_CLI_CONFIG"

// ServerProfile is an immutable description of one MCP server.
type ServerProfile struct {
	// Command is the executable plus its fixed arguments.
	Command []string `json:"command"`
	// DefaultArgs are appended to Command unless overridden wholesale.
	DefaultArgs []string `json:"default_args,omitempty"`
	// SupportsDaemon permits routing calls through a background daemon.
	SupportsDaemon bool `json:"supports_daemon,omitempty"`
	// Description is free-form text for list-servers output.
	Description string `json:"description,omitempty"`
	// Env holds environment variable overrides for the server process.
	Env map[string]string `json:"env,omitempty"`
}

// Config maps server names to their profiles.
type Config map[string]ServerProfile

// DefaultConfigPath returns the config file path, honoring ConfigPathEnv.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigRelPath), nil
}

// Load reads and parses the server configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s (create it with server profiles)", path)
		}

		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in config %s: %w", path, err)
	}

	return cfg, nil
}

// Lookup returns the profile for a server name.
func (c Config) Lookup(name string) (*ServerProfile, error) {
	p, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("server %q not found in config", name)
	}

	return &p, nil
}

// SanitizeName strips everything but alphanumerics, hyphens, and
// underscores from a server name to keep derived paths traversal-safe.
func SanitizeName(name string) string {
	var b strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Dir returns the per-(directory, server) profile directory.
func Dir(dir, server string) string {
	return filepath.Join(dir, ".mcp-profile", SanitizeName(server))
}

// ExpandArgs substitutes template variables in an argument list.
//
// Supported variables: {profile_dir}, {pid}, {cwd}. The directory is the
// explicit working-directory key, not the process's implicit cwd.
func ExpandArgs(args []string, server, dir string) []string {
	profileDir := Dir(dir, server)
	pid := strconv.Itoa(os.Getpid())

	expanded := make([]string, len(args))
	for i, arg := range args {
		arg = strings.ReplaceAll(arg, "{profile_dir}", profileDir)
		arg = strings.ReplaceAll(arg, "{pid}", pid)
		arg = strings.ReplaceAll(arg, "{cwd}", dir)
		expanded[i] = arg
	}

	return expanded
}

// Argv assembles the full command line for the server process.
//
// A non-nil extraArgs overrides DefaultArgs wholesale, even when empty.
// Template variables are expanded in whichever argument list is used.
func (p *ServerProfile) Argv(server, dir string, extraArgs []string) ([]string, error) {
	if len(p.Command) == 0 {
		return nil, &errors.SpawnError{Command: nil, Err: errors.ErrEmptyCommand}
	}

	args := p.DefaultArgs
	if extraArgs != nil {
		args = extraArgs
	}

	argv := make([]string, 0, len(p.Command)+len(args))
	argv = append(argv, p.Command...)
	argv = append(argv, ExpandArgs(args, server, dir)...)

	return argv, nil
}

// Environ returns the process environment with the profile's overrides
// applied on top of the current environment.
func (p *ServerProfile) Environ() []string {
	env := os.Environ()
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}

	return env
}
