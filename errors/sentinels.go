package errors

// Package-level sentinels, grounded on the teacher's errors/Error_types.go
// pattern of pre-built *Error values for common, codeless-message cases.
var (
	ErrUnknown          = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument  = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound         = New(ERR_NOT_FOUND, "not found")
	ErrContextCancelled = New(ERR_CONTEXT_CANCELED, "context cancelled")

	ErrUnknownParent  = New(ERR_UNKNOWN_PARENT, "previous_hash not found in chain index")
	ErrInvalidWork    = New(ERR_INVALID_WORK, "total_work does not equal prev.total_work + work_from_bits")
	ErrStorageCorrupt = New(ERR_STORAGE_CORRUPT, "persisted chain state is inconsistent")
	ErrMissingData    = New(ERR_MISSING_DATA, "requested header or block body is not yet available")
	ErrMempoolReject  = New(ERR_MEMPOOL_REJECT, "transaction rejected from mempool")
)

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}

func NewStorageCorruptError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_CORRUPT, message, params...)
}

func NewMissingDataError(message string, params ...interface{}) error {
	return New(ERR_MISSING_DATA, message, params...)
}

func NewMempoolRejectError(message string, params ...interface{}) error {
	return New(ERR_MEMPOOL_REJECT, message, params...)
}
