package mcpcli

import "github.com/yonaka/mcp-cli/internal/profile"

// ServerProfile is an immutable description of one MCP server: its
// command, default arguments, environment overrides, and daemon support.
type ServerProfile = profile.ServerProfile

// Config maps server names to their profiles.
type Config = profile.Config

// ConfigPathEnv overrides the configuration file location when set.
const ConfigPathEnv = profile.ConfigPathEnv

// LoadConfig loads the server configuration from its default location
// (~/.claude/scripts/mcp-servers.json, or $MCP_CLI_CONFIG when set).
func LoadConfig() (Config, error) {
	path, err := profile.DefaultConfigPath()
	if err != nil {
		return nil, err
	}

	return profile.Load(path)
}

// LoadConfigFile loads the server configuration from an explicit path.
func LoadConfigFile(path string) (Config, error) {
	return profile.Load(path)
}
