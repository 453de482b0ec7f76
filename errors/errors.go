// Package errors provides the typed error value used across chaincore.
//
// It mirrors the semantic error kinds of the consensus core (§7): a
// ValidationError always carries the offending block hash, StorageCorrupt
// is fatal, MissingData and MempoolReject are recoverable/expected, and
// Cancelled marks cooperative cancellation.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ERR is a semantic error code. Codes group into the families described
// in spec §7: validation sub-kinds, storage, missing-data, mempool and
// cancellation.
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_INVALID_ARGUMENT
	ERR_NOT_FOUND
	ERR_CONTEXT_CANCELED

	// ValidationError sub-kinds (spec §7)
	ERR_MERKLE_ROOT_MISMATCH
	ERR_STRUCTURAL_RULE
	ERR_ACCOUNTING_OVERFLOW
	ERR_SIGOP_LIMIT
	ERR_SIZE_LIMIT
	ERR_SCRIPT_INVALID
	ERR_DOUBLE_SPEND_IN_BLOCK
	ERR_COINBASE_IMMATURE
	ERR_BAD_SUBSIDY
	ERR_BAD_DIFFICULTY
	ERR_UNKNOWN_PARENT
	ERR_INVALID_WORK

	// Chain-index / reorg errors
	ERR_STORAGE_CORRUPT // fatal, node must stop

	// Ingest / collaborator errors
	ERR_MISSING_DATA

	// Mempool admission errors
	ERR_MEMPOOL_REJECT
)

var errName = map[ERR]string{
	ERR_UNKNOWN:               "UNKNOWN",
	ERR_INVALID_ARGUMENT:      "INVALID_ARGUMENT",
	ERR_NOT_FOUND:             "NOT_FOUND",
	ERR_CONTEXT_CANCELED:      "CONTEXT_CANCELED",
	ERR_MERKLE_ROOT_MISMATCH:  "MERKLE_ROOT_MISMATCH",
	ERR_STRUCTURAL_RULE:       "STRUCTURAL_RULE",
	ERR_ACCOUNTING_OVERFLOW:   "ACCOUNTING_OVERFLOW",
	ERR_SIGOP_LIMIT:           "SIGOP_LIMIT",
	ERR_SIZE_LIMIT:            "SIZE_LIMIT",
	ERR_SCRIPT_INVALID:        "SCRIPT_INVALID",
	ERR_DOUBLE_SPEND_IN_BLOCK: "DOUBLE_SPEND_IN_BLOCK",
	ERR_COINBASE_IMMATURE:     "COINBASE_IMMATURE",
	ERR_BAD_SUBSIDY:           "BAD_SUBSIDY",
	ERR_BAD_DIFFICULTY:        "BAD_DIFFICULTY",
	ERR_UNKNOWN_PARENT:        "UNKNOWN_PARENT",
	ERR_INVALID_WORK:          "INVALID_WORK",
	ERR_STORAGE_CORRUPT:       "STORAGE_CORRUPT",
	ERR_MISSING_DATA:          "MISSING_DATA",
	ERR_MEMPOOL_REJECT:        "MEMPOOL_REJECT",
}

func (c ERR) String() string {
	if s, ok := errName[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Error is the error value returned throughout chaincore. It carries a
// semantic code, a human message, an optional wrapped cause, and for
// ValidationError instances the hash of the offending block.
type Error struct {
	code       ERR
	message    string
	wrappedErr error
	blockHash  string // hex, set only for ValidationError
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.wrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}

	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrappedErr)
}

// Is reports whether target's code matches e's code, recursing through
// wrapped *Error values. A target that is not an *Error never matches.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	targetErr, ok := target.(*Error)
	if !ok {
		return false
	}

	if e.code == targetErr.code {
		return true
	}

	if wrapped, ok := e.wrappedErr.(*Error); ok {
		return wrapped.Is(target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.wrappedErr
}

func (e *Error) Code() ERR {
	if e == nil {
		return ERR_UNKNOWN
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// BlockHash returns the hex hash of the block this ValidationError was
// raised against, or "" if none was attached.
func (e *Error) BlockHash() string {
	if e == nil {
		return ""
	}
	return e.blockHash
}

// New builds an *Error. A trailing error/*Error argument in params is
// folded in as the wrapped cause rather than formatted into the message.
func New(code ERR, message string, params ...interface{}) *Error {
	var wrapped error

	if len(params) > 0 {
		if lastErr, ok := params[len(params)-1].(error); ok {
			wrapped = lastErr
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{code: code, message: message, wrappedErr: wrapped}
}

// ValidationErrorf builds a consensus-rule-violation error bound to a
// specific block hash, per spec §7.
func ValidationErrorf(code ERR, blockHash string, message string, params ...interface{}) *Error {
	e := New(code, message, params...)
	e.blockHash = blockHash
	return e
}

// IsValidationError reports whether err is one of the ValidationError
// sub-kinds of spec §7 (always eligible for Invalid-Block Cache addition).
func IsValidationError(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}

	switch e.code {
	case ERR_MERKLE_ROOT_MISMATCH, ERR_STRUCTURAL_RULE, ERR_ACCOUNTING_OVERFLOW,
		ERR_SIGOP_LIMIT, ERR_SIZE_LIMIT, ERR_SCRIPT_INVALID, ERR_DOUBLE_SPEND_IN_BLOCK,
		ERR_COINBASE_IMMATURE, ERR_BAD_SUBSIDY, ERR_BAD_DIFFICULTY:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err represents StorageCorrupt: the node must
// stop and signal the operator rather than attempt local recovery.
func IsFatal(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.code == ERR_STORAGE_CORRUPT
}

// IsMissingData reports whether err represents data not yet available
// from a collaborator (header, body) and should be retried, not faulted.
func IsMissingData(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.code == ERR_MISSING_DATA
}

// IsCancelled reports cooperative pipeline cancellation.
func IsCancelled(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.code == ERR_CONTEXT_CANCELED
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Join concatenates the messages of non-nil errors; nil if all are nil.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
