package run

import (
	"context"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/session-sink/base"
	"github.com/relex/session-sink/bufferstore"
	"github.com/relex/session-sink/ingest"
	"github.com/relex/session-sink/remote"
	"github.com/relex/session-sink/session"
)

// Loader loads configuration from file and prepares the environment to be launched
//
// Loader should take care of everything derived from the config file, but not trigger anything automatically
type Loader struct {
	Config        *Config
	MetricFactory promreg.MetricCreator
}

// NewLoaderFromConfigFile creates a Loader with verified configuration
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}

	return &Loader{
		Config:        config,
		MetricFactory: promreg.NewMetricFactory(metricPrefix, nil, nil),
	}, nil
}

// OpenObjectStore creates the remote storage client from config
func (loader *Loader) OpenObjectStore(ctx context.Context, parentLogger logger.Logger) (base.ObjectStore, error) {
	return remote.NewS3Store(ctx, parentLogger, loader.Config.Remote, loader.MetricFactory)
}

// NewConsumer creates the Kafka consumer from config; it is not started
func (loader *Loader) NewConsumer(parentLogger logger.Logger) (*ingest.Consumer, error) {
	return ingest.NewConsumer(parentLogger, &loader.Config.Input, loader.MetricFactory)
}

// LaunchOrchestrator sweeps leftover buffer files and launches the session
// orchestrator in background
func (loader *Loader) LaunchOrchestrator(parentLogger logger.Logger, objectStore base.ObjectStore,
	committer base.OffsetCommitter) *session.Orchestrator {

	rootPath := loader.Config.Buffer.ExpandedRootPath(parentLogger)
	bufferstore.SweepRoot(parentLogger, rootPath)

	return session.NewOrchestrator(parentLogger, &loader.Config.Session, rootPath, loader.Config.Remote.Folder,
		objectStore, committer, loader.MetricFactory)
}
