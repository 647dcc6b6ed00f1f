// File: internal/services/chat/config.go
package chat

import "fmt"

type Config struct {
	// Model Configuration
	DefaultModel       string  // used when a request names none
	DefaultMaxTokens   int     // generation budget when a request sends none
	DefaultTemperature float64 // sampling temperature when a request sends none

	// Persistence
	RecoveredTitle string // title of a chat recreated after its record vanished
	PurgeWorkers   int    // concurrent deletes in a bulk purge
}

func (c *Config) Validate() error {
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("default_max_tokens must be positive")
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		return fmt.Errorf("default_temperature must be between 0 and 2")
	}
	if c.RecoveredTitle == "" {
		return fmt.Errorf("recovered_title is required")
	}
	if c.PurgeWorkers < 1 {
		return fmt.Errorf("purge_workers must be at least 1")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		DefaultMaxTokens:   500,
		DefaultTemperature: 0.7,
		RecoveredTitle:     "Recovered conversation",
		PurgeWorkers:       8,
	}
}
