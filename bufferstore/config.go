package bufferstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/relex/gotils/logger"
)

// Config defines the local buffer storage section in config file
type Config struct {
	RootPath string `yaml:"rootPath"` // root path on top of per-session buffer subdirs, may contain environment variables
}

// ExpandedRootPath resolves environment variables in the configured root path
func (cfg *Config) ExpandedRootPath(parentLogger logger.Logger) string {
	rootPath := os.ExpandEnv(cfg.RootPath)
	if strings.Contains(rootPath, "$") {
		parentLogger.Warnf("possibly misconfigured .rootPath: '%s'", rootPath)
	}
	return rootPath
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.RootPath) == 0 {
		return fmt.Errorf(".rootPath is unspecified")
	}
	return nil
}
