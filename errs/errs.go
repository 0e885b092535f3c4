// Package errs defines the storage core's error taxonomy (§7): a small set
// of sentinel kinds plus a CoreError that carries a stable five-character
// SQLSTATE-like code and the full cause chain, so logs retain context that a
// bare fmt.Errorf would lose.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a five-character SQLSTATE-like error code.
type Code string

const (
	CodeNotNullViolation      Code = "23502"
	CodeNumericOutOfRange     Code = "22003"
	CodeDivisionByZero        Code = "22012"
	CodeInvalidParamValue     Code = "22023"
	CodeUndefinedObject       Code = "42704"
	CodeXidWraparound         Code = "53400"
	CodeNoFreeBuffers         Code = "53401"
	CodeActiveSQLTransaction  Code = "25001"
	CodeCRCMismatch           Code = "58P01"
	CodeShortIO               Code = "58030"
	CodeIOFailure             Code = "58030"
	CodeInternalError         Code = "XX000" // unreachable dispatch, illegal state transition
)

// CoreError is the caller-visible {severity, code, message} shape from §7.
// Its cause chain is preserved via Unwrap so callers can still errors.Is a
// sentinel further down, and logging with "%+v" reconstructs the full chain.
type CoreError struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

func Wrap(code Code, cause error, message string) *CoreError {
	return &CoreError{Code: code, Message: message, cause: errors.WithStack(cause)}
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.cause }

// Sentinel kinds referenced by more than one package. Package-local sentinels
// (e.g. access/wal.ErrShortRecord) wrap these with errors.Wrap so a caller
// can match either the specific or the general kind.
var (
	ErrNotNullViolation      = errors.New("not-null constraint violated")
	ErrXidWraparound         = errors.New("transaction id wraparound")
	ErrNoFreeBuffers         = errors.New("no unpinned buffer available for eviction")
	ErrCRCMismatch           = errors.New("crc32c checksum mismatch")
	ErrShortRead             = errors.New("short read")
	ErrShortWrite            = errors.New("short write")
	ErrUnexpectedBlockSize   = errors.New("unexpected block size")
	ErrIllegalStateTransition = errors.New("illegal transaction state transition")
	ErrFileOpen              = errors.New("failed to open file")
)
