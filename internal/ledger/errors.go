package ledger

import "errors"

// ErrTableCreation indicates the ledger table could not be created.
var ErrTableCreation = errors.New("creating ledger table")

// ErrExecution indicates a migration script failed to execute.
var ErrExecution = errors.New("migration execution failed")

// ErrRecord indicates the ledger row for an executed script could not be written.
var ErrRecord = errors.New("recording migration failed")

// ErrDuplicateRecord indicates the filename is already in the ledger, typically
// because another applier recorded it concurrently.
var ErrDuplicateRecord = errors.New("migration already recorded")
