package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for problems that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.APIURL == "" {
		problems = append(problems, "server.api_url is required")
	}
	if c.Server.WSURL == "" {
		problems = append(problems, "server.ws_url is required")
	} else if !strings.HasPrefix(c.Server.WSURL, "ws://") && !strings.HasPrefix(c.Server.WSURL, "wss://") {
		problems = append(problems, "server.ws_url must start with ws:// or wss://")
	}
	if c.Transport.ReconnectAttempts < 1 {
		problems = append(problems, "transport.reconnect_attempts must be at least 1")
	}
	if c.Transport.ReconnectBase > c.Transport.ReconnectMax {
		problems = append(problems, "transport.reconnect_base must not exceed reconnect_max")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
