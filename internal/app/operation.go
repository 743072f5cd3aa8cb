package app

import (
	"shelf/internal/database"
)

// Operation tracks the CLI command being run. It lives in memory with ID 0
// until a mutating command persists it to the journal.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	Message    string
}

// NewOperation creates an in-memory operation that will finish as a success
// unless Fail is called.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation failed with err's message. A nil err is ignored.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = database.StatusFailed
	op.Message = err.Error()
}
