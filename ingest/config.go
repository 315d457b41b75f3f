package ingest

import (
	"fmt"
)

// Config defines the Kafka input section in config file
type Config struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	Group         string   `yaml:"group"`
	ClientID      string   `yaml:"clientID"`
	InitialOffset string   `yaml:"initialOffset"` // "oldest" or "newest", where to start a group without committed offsets
	TeamAllowlist []string `yaml:"teamAllowlist"` // glob patterns of team IDs to ingest; empty = all
}

// VerifyConfig checks configuration and fills the defaulted fields in place
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf(".brokers is unspecified")
	}
	if len(cfg.Topic) == 0 {
		return fmt.Errorf(".topic is unspecified")
	}
	if len(cfg.Group) == 0 {
		return fmt.Errorf(".group is unspecified")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "session-sink"
	}
	switch cfg.InitialOffset {
	case "":
		cfg.InitialOffset = "oldest"
	case "oldest", "newest":
	default:
		return fmt.Errorf(".initialOffset must be 'oldest' or 'newest', not '%s'", cfg.InitialOffset)
	}
	if _, err := NewTeamFilter(cfg.TeamAllowlist); err != nil {
		return fmt.Errorf(".teamAllowlist: %w", err)
	}
	return nil
}
