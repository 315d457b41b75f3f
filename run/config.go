package run

import (
	"fmt"

	"github.com/relex/session-sink/bufferstore"
	"github.com/relex/session-sink/ingest"
	"github.com/relex/session-sink/remote"
	"github.com/relex/session-sink/session"
	"github.com/relex/session-sink/util"
)

// Config defines the root of session-sink config file
type Config struct {
	Input   ingest.Config      `yaml:"input"`
	Buffer  bufferstore.Config `yaml:"buffer"`
	Session session.Config     `yaml:"session"`
	Remote  remote.Config      `yaml:"remote"`
}

// LoadConfigFile loads config from the path and verifies all sections
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		return nil, err
	}
	if err := cref.verify(); err != nil {
		return nil, err
	}
	return cref, nil
}

// LoadConfigString loads config from a YAML string and verifies all sections
func LoadConfigString(contents string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlString(contents, cref); err != nil {
		return nil, err
	}
	if err := cref.verify(); err != nil {
		return nil, err
	}
	return cref, nil
}

func (cfg *Config) verify() error {
	if err := cfg.Input.VerifyConfig(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := cfg.Buffer.VerifyConfig(); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if err := cfg.Session.VerifyConfig(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := cfg.Remote.VerifyConfig(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	return nil
}
