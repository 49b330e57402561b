package service

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind classifies failures from the remote store and the resolver.
type ErrorKind int

const (
	// KindTransient errors are retried: timeouts, connection resets,
	// DNS failures, 5xx responses and other transport failures.
	KindTransient ErrorKind = iota

	// KindTerminal errors are returned at once. This includes 4xx
	// responses, malformed responses and validation failures.
	KindTerminal

	// KindCancelled means the caller aborted the operation.
	KindCancelled

	// KindNotFound means the resolver exhausted every candidate and
	// heuristic, or no key candidate exists in the backing store.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	case KindCancelled:
		return "cancelled"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// StoreError describes a failed persistence operation. Message is meant
// for people: it never contains a stack trace. Use Detail for logs.
type StoreError struct {
	Attempts int
	Bucket   string
	Err      error
	Key      string
	Kind     ErrorKind
	Message  string
	Op       string
	Source   string
}

// NewStoreError returns a new StoreError. Source records the caller's
// file and line for Detail.
func NewStoreError(op, bucket, key string, kind ErrorKind, message string, err error) *StoreError {
	_, filename, line, ok := runtime.Caller(1)
	source := "unknown:0"
	if ok {
		source = fmt.Sprintf("%s:%d", filename, line)
	}
	return &StoreError{
		Bucket:  bucket,
		Err:     err,
		Key:     key,
		Kind:    kind,
		Message: message,
		Op:      op,
		Source:  source,
	}
}

func (e *StoreError) Error() string {
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Detail returns a longer description suitable for the log.
func (e *StoreError) Detail() string {
	underlyingError := ""
	if e.Err != nil {
		underlyingError = fmt.Sprintf(" (Underlying error: %s)", e.Err.Error())
	}
	return fmt.Sprintf("%s %s/%s [%s, %d attempts] %s [%s]%s",
		e.Op, e.Bucket, e.Key, e.Kind, e.Attempts, e.Message, e.Source, underlyingError)
}

// KindOf returns the kind of err if it is (or wraps) a StoreError.
// Other non-nil errors are reported as terminal.
func KindOf(err error) ErrorKind {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return KindTerminal
}

// IsNotFound returns true if err is a StoreError of kind KindNotFound.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsCancelled returns true if err is a StoreError of kind KindCancelled.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

// HttpError captures the details of a failed plain HTTP request, such
// as the unauthenticated fetch of an object's public URL.
type HttpError struct {
	Err        error
	Message    string
	Method     string
	StatusCode int
	URL        string
}

func NewHttpError(message string, err error, method, url string, statusCode int) *HttpError {
	return &HttpError{
		Err:        err,
		Message:    message,
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
	}
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func (e *HttpError) Error() string {
	return e.Message
}

func (e *HttpError) Detail() string {
	underlyingError := ""
	if e.Err != nil {
		underlyingError = fmt.Sprintf("(Underlying error: %s)", e.Err.Error())
	}
	return fmt.Sprintf(
		"%s: %s returned status %d. Message: %s %s",
		e.Method, e.URL, e.StatusCode, e.Message, underlyingError)
}
