package bufferstore

import (
	"fmt"
)

// StorageError reports a failed create, append or delete on a local buffer file.
// Create and append failures are fatal to the add in progress and must be surfaced
// to the ingestion loop; delete failures for any reason other than absence likewise.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("buffer %s '%s': %s", e.Op, e.Path, e.Err.Error())
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
