package warehouse

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrInputNotFound is returned when a required extract or source relation is missing.
	ErrInputNotFound = errors.New("warehouse: input not found")
	// ErrConstraintViolation matches every *ConstraintError.
	ErrConstraintViolation = errors.New("warehouse: constraint violation")
)

// ConstraintError reports a uniqueness or key violation raised while writing table.
type ConstraintError struct {
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %v", e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConstraintViolation) match.
func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }

// PhaseError wraps the failure of one transactional phase. The phase's
// writes were rolled back when it is returned.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s rolled back: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Classify converts SQLite constraint failures into *ConstraintError and
// returns every other error unchanged.
func Classify(err error, table string) error {
	if err == nil {
		return nil
	}
	var cerr *ConstraintError
	if errors.As(err, &cerr) {
		return err
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return &ConstraintError{Table: table, Err: err}
	}
	return err
}
