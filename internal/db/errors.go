package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// Concurrent whole-document updates can hit this; callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrSchemaViolation indicates a write rejected by a field assertion.
	ErrSchemaViolation = errors.New("schema violation")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel error if it's a known query error type.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
		if strings.Contains(msg, "but expected") || strings.Contains(msg, "assertion") {
			return fmt.Errorf("%w: %s", ErrSchemaViolation, msg)
		}
	}

	return err
}
