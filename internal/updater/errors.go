package updater

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeDisabled       = "DISABLED"
	CodeInvalidState   = "INVALID_STATE"
	CodeCheckFailed    = "CHECK_FAILED"
	CodeNotFound       = "NOT_FOUND"
	CodeNoUpdate       = "NO_UPDATE"
	CodeBackupFailed   = "BACKUP_FAILED"
	CodeApplyFailed    = "APPLY_FAILED"
	CodeNoBackup       = "NO_BACKUP"
	CodeRollbackFailed = "ROLLBACK_FAILED"
)

// Error is an updater failure tagged with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HasCode reports whether err is an updater Error with the given code.
func HasCode(err error, code string) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Code == code
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
