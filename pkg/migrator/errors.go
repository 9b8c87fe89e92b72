package migrator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMigration reports a rollback of an id the runner does not
	// hold.
	ErrUnknownMigration = errors.New("unknown migration")
	// ErrNotExecuted reports a rollback of a migration that never ran.
	ErrNotExecuted = errors.New("migration not executed")
)

// MigrationError reports a failed Up or Down. The migration's transaction was
// rolled back; migrations committed before it stand.
type MigrationError struct {
	ID        string
	Name      string
	Direction string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s) %s: %v", e.ID, e.Name, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// RollbackPreconditionError rejects a rollback before any side effect.
type RollbackPreconditionError struct {
	ID  string
	Err error
}

func (e *RollbackPreconditionError) Error() string {
	return fmt.Sprintf("cannot roll back %s: %v", e.ID, e.Err)
}

func (e *RollbackPreconditionError) Unwrap() error { return e.Err }
