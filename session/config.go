package session

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/session-sink/defs"
)

// Config defines the session buffering section in config file
type Config struct {
	MaxBufferSize            datasize.ByteSize `yaml:"maxBufferSize"`            // size trigger threshold on the estimated post-compression size
	MaxBufferAge             time.Duration     `yaml:"maxBufferAge"`             // age trigger threshold on the oldest buffered record
	MaxPendingAge            time.Duration     `yaml:"maxPendingAge"`            // eviction threshold for incomplete chunk groups, 0 = default
	IdleTimeout              time.Duration     `yaml:"idleTimeout"`              // retire sessions without records for this long, 0 = default
	CompressionRatioEstimate float64           `yaml:"compressionRatioEstimate"` // assumed gzip output/input ratio for the size trigger, 0 = default
}

// VerifyConfig checks configuration and fills the defaulted fields in place
func (cfg *Config) VerifyConfig() error {
	if cfg.MaxBufferSize.Bytes() == 0 {
		return fmt.Errorf(".maxBufferSize is unspecified")
	}
	if cfg.MaxBufferAge <= 0 {
		return fmt.Errorf(".maxBufferAge is unspecified")
	}
	if cfg.CompressionRatioEstimate < 0 || cfg.CompressionRatioEstimate > 1 {
		return fmt.Errorf(".compressionRatioEstimate must be within (0, 1]")
	}
	if cfg.CompressionRatioEstimate == 0 {
		cfg.CompressionRatioEstimate = defs.DefaultCompressionRatio
	}
	if cfg.MaxPendingAge == 0 {
		cfg.MaxPendingAge = defs.DefaultMaxPendingAge
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defs.DefaultIdleTimeout
	}
	if cfg.IdleTimeout <= cfg.MaxBufferAge {
		return fmt.Errorf(".idleTimeout must be above .maxBufferAge so buffers drain before retirement")
	}
	return nil
}
