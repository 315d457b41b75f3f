package remote

import (
	"fmt"
)

// Config defines the remote object storage section in config file
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Folder          string `yaml:"folder"`          // top-level key prefix for flushed session archives
	Endpoint        string `yaml:"endpoint"`        // custom endpoint for S3-compatible stores, empty = AWS
	AccessKeyID     string `yaml:"accessKeyID"`     // static credentials; empty = default AWS credential chain
	SecretAccessKey string `yaml:"secretAccessKey"` //
	SessionToken    string `yaml:"sessionToken"`    //
	PathStyle       bool   `yaml:"pathStyle"`       // required by MinIO and most self-hosted stores
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Bucket) == 0 {
		return fmt.Errorf(".bucket is unspecified")
	}
	if len(cfg.Region) == 0 {
		return fmt.Errorf(".region is unspecified")
	}
	if len(cfg.Folder) == 0 {
		return fmt.Errorf(".folder is unspecified")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return fmt.Errorf(".accessKeyID and .secretAccessKey must be set together")
	}
	return nil
}
