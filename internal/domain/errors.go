package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	ErrSerialization     = errors.New("serialization error")
	ErrIdentifierTooLong = errors.New("identifier too long")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrAggregateReadBack = errors.New("aggregate read-back failure")
	ErrSubmission        = errors.New("submission failure")
	ErrLedgerRead        = errors.New("ledger read failure")
	ErrDirectoryLoad     = errors.New("directory load warning")
	ErrNotFound          = errors.New("not found")
)

// Stage names one step of the write path.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageHash      Stage = "hash"
	StageEncode    Stage = "encode"
	StagePersist   Stage = "persist"
	StageAggregate Stage = "aggregate"
	StageSubmit    Stage = "submit"
)

// StageError identifies which write stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" if err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
