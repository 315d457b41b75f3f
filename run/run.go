// Package run wires configuration into the running ingestion pipeline
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/defs"
)

// Run runs the sink until stopped by signals
func Run(configFile string) {
	loader, loaderErr := NewLoaderFromConfigFile(configFile, "sessionsink_")
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}

	objectStore, storeErr := loader.OpenObjectStore(context.Background(), logger.Root())
	if storeErr != nil {
		logger.Fatal(storeErr)
	}

	consumer, consumerErr := loader.NewConsumer(logger.Root())
	if consumerErr != nil {
		logger.Fatal(consumerErr)
	}

	orchestrator := loader.LaunchOrchestrator(logger.Root(), objectStore, consumer)
	consumer.Launch(orchestrator)

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	// wait for shutdown signal
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		s := <-sigChan
		runLogger.Infof("received %s, shutting down", s)
	}

	consumer.Stop()
	orchestrator.Shutdown()
	runLogger.Info("clean exit")
}
