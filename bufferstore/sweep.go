package bufferstore

import (
	"os"
	"path/filepath"

	"github.com/relex/gotils/logger"
	"github.com/relex/session-sink/defs"
)

// SweepRoot removes leftover buffer files and session dirs from previous runs.
// Buffer files are transient and never read back after a restart, so anything
// found under the root at startup is garbage.
func SweepRoot(parentLogger logger.Logger, rootPath string) {
	slogger := parentLogger.WithField(defs.LabelComponent, "BufferSweeper")

	entries, rerr := os.ReadDir(rootPath)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return
		}
		slogger.Errorf("error scanning root dir '%s': %s", rootPath, rerr.Error())
		return
	}

	numRemoved := 0
	for _, entry := range entries {
		path := filepath.Join(rootPath, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slogger.Errorf("error removing leftover '%s': %s", path, err.Error())
			continue
		}
		numRemoved++
	}
	if numRemoved > 0 {
		slogger.Infof("removed leftover entries count=%d", numRemoved)
	}
}
