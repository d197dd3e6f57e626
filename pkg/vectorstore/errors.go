package vectorstore

import "errors"

// ClientError is the error shape Client implementations return so the
// batcher can distinguish retryable failures from permanent ones without
// string-matching messages.
type ClientError struct {
	Transient bool
	// Duplicate marks an upsert rejected because the point id already
	// exists with identical content. Upserts are idempotent by id, so this
	// is not a failure: Upsert treats it as a successful write of that
	// point rather than retrying or reporting it as failed.
	Duplicate bool
	Message   string
	Cause     error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewTransientError wraps cause as a retryable client error (network error,
// 5xx, throttling).
func NewTransientError(message string, cause error) *ClientError {
	return &ClientError{Transient: true, Message: message, Cause: cause}
}

// NewPermanentError wraps cause as a non-retryable client error (4xx other
// than throttling).
func NewPermanentError(message string, cause error) *ClientError {
	return &ClientError{Transient: false, Message: message, Cause: cause}
}

// NewDuplicateError wraps cause as a rejected-as-duplicate upsert: the point
// id already exists with identical content. Upsert treats this as a
// successful write rather than a failure (see ClientError.Duplicate).
func NewDuplicateError(message string, cause error) *ClientError {
	return &ClientError{Duplicate: true, Message: message, Cause: cause}
}

// isTransient reports whether err should be retried. A client error is
// consulted for its Transient flag; any other error is treated as
// permanent, since an unrecognized error shouldn't be retried blindly.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}

// isDuplicate reports whether err is a rejected-as-duplicate upsert.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Duplicate
	}
	return false
}
