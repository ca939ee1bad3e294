// MCP server configuration file support.
//
// Supports Anthropic-style MCP configuration format:
//
//	{
//	  "mcpServers": {
//	    "airtable": {
//	      "command": "npx",
//	      "args": ["-y", "airtable-mcp-server"],
//	      "env": {"AIRTABLE_API_KEY": "pat..."}
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single MCP server configuration.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Server returns the configuration for the named server. When name is
// empty and exactly one server is configured, that server is returned.
func (c *Config) Server(name string) (ServerConfig, error) {
	if name == "" {
		if len(c.MCPServers) == 1 {
			for _, server := range c.MCPServers {
				return server, nil
			}
		}
		return ServerConfig{}, fmt.Errorf("config defines %d servers; a server name is required", len(c.MCPServers))
	}

	server, ok := c.MCPServers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("server %q not found in config", name)
	}
	return server, nil
}
