package applier

import (
	"fmt"

	"github.com/corpadmin/migration-api/internal/database"
)

// ErrLockNotAcquired is returned when another applier holds the migration lock.
var ErrLockNotAcquired = database.ErrLockNotAcquired

// ApplyError reports the script that stopped a run.
type ApplyError struct {
	Filename string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying %s: %v", e.Filename, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
