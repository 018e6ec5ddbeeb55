package sqlite

import (
	"strings"
	"time"
)

const (
	busyMaxAttempts = 5
	busyRetryDelay  = 50 * time.Millisecond
)

// retryOnBusy runs fn, retrying with a linearly growing delay when SQLite
// reports the database is locked. WAL mode makes contention rare, but
// concurrent region writers can still collide on checkpoint.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * busyRetryDelay)
	}
	return err
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
