package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/sheetbridge/persistence/models/service"
)

// ErrAttemptTimeout is returned when a single attempt loses the race
// against its per-attempt timer.
var ErrAttemptTimeout = errors.New("attempt timed out")

// S3 error codes that mean "try again later" even when the status
// code alone would not say so.
var transientCodes = []string{
	"InternalError",
	"RequestTimeout",
	"RequestTimeTooSkewed",
	"ServiceUnavailable",
	"SlowDown",
}

var transientPatterns = []string{
	"broken pipe",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"no such host",
	"server misbehaving",
	"tls handshake timeout",
	"unexpected eof",
}

// Classify decides how the retry loop treats err. ctx is the caller's
// context, which tells a caller abort apart from an attempt timeout.
func Classify(ctx context.Context, err error) service.ErrorKind {
	if ctx != nil && ctx.Err() != nil {
		return service.KindCancelled
	}
	if errors.Is(err, context.Canceled) {
		return service.KindCancelled
	}
	var storeErr *service.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return service.KindTransient
	}
	if IsObjectNotFound(err) {
		return service.KindNotFound
	}
	if status := statusCodeOf(err); status > 0 {
		if isTransientStatus(status) {
			return service.KindTransient
		}
		var errResp minio.ErrorResponse
		if errors.As(err, &errResp) && isTransientCode(errResp.Code) {
			return service.KindTransient
		}
		return service.KindTerminal
	}
	if isNetworkError(err) {
		return service.KindTransient
	}
	return service.KindTerminal
}

// IsObjectNotFound returns true if err says the key does not exist.
func IsObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.Code == "NoSuchKey" || (errResp.StatusCode == http.StatusNotFound && errResp.Code != "NoSuchBucket")
	}
	var httpErr *service.HttpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Describe returns a short human-readable description of err, without
// stack traces or raw response bodies.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var storeErr *service.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Message
	}
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) && errResp.StatusCode > 0 {
		message := errResp.Message
		if message == "" {
			message = errResp.Code
		}
		return fmt.Sprintf("%s (status %d)", message, errResp.StatusCode)
	}
	var httpErr *service.HttpError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode > 0 {
			return fmt.Sprintf("%s (status %d)", httpErr.Message, httpErr.StatusCode)
		}
		return httpErr.Message
	}
	return err.Error()
}

func statusCodeOf(err error) int {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.StatusCode
	}
	var httpErr *service.HttpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// 408 and 429 are timeouts and throttling, not client mistakes.
func isTransientStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func isTransientCode(code string) bool {
	for _, c := range transientCodes {
		if c == code {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	// Anything the HTTP transport gave up on.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
