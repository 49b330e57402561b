package network_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/network"
	"github.com/sheetbridge/persistence/util/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		kind service.ErrorKind
	}{
		{"503", testutil.ServiceUnavailable(), service.KindTransient},
		{"500", minio.ErrorResponse{Code: "InternalError", StatusCode: 500}, service.KindTransient},
		{"429", minio.ErrorResponse{Code: "TooManyRequests", StatusCode: 429}, service.KindTransient},
		{"408", minio.ErrorResponse{Code: "RequestTimeout", StatusCode: 408}, service.KindTransient},
		{"400 with slow down code", minio.ErrorResponse{Code: "SlowDown", StatusCode: 400}, service.KindTransient},
		{"403", testutil.AccessDenied("uploads", "k"), service.KindTerminal},
		{"400", minio.ErrorResponse{Code: "InvalidArgument", StatusCode: 400}, service.KindTerminal},
		{"no such key", testutil.NoSuchKey("uploads", "k"), service.KindNotFound},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}, service.KindTerminal},
		{"attempt timeout", fmt.Errorf("%w after 1s", network.ErrAttemptTimeout), service.KindTransient},
		{"deadline", context.DeadlineExceeded, service.KindTransient},
		{"cancelled", context.Canceled, service.KindCancelled},
		{"connection reset", testutil.ConnectionReset, service.KindTransient},
		{"errno", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, service.KindTransient},
		{"bare errno", fmt.Errorf("write: %w", syscall.EPIPE), service.KindTransient},
		{"dns", &net.DNSError{Err: "no such host", Name: "s3.example.com"}, service.KindTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, service.KindTransient},
		{"http 502", service.NewHttpError("bad gateway", nil, http.MethodGet, "http://x", 502), service.KindTransient},
		{"http 404", service.NewHttpError("missing", nil, http.MethodGet, "http://x", 404), service.KindNotFound},
		{"validation", errors.New("Uploaded only 3 of 5 bytes"), service.KindTerminal},
		{"store error", service.NewStoreError("get", "b", "k", service.KindNotFound, "gone", nil), service.KindNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, network.Classify(ctx, tt.err), tt.name)
	}
}

func TestClassifyCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Whatever the error, a cancelled caller wins.
	assert.Equal(t, service.KindCancelled, network.Classify(ctx, testutil.ServiceUnavailable()))
}

func TestIsObjectNotFound(t *testing.T) {
	assert.True(t, network.IsObjectNotFound(testutil.NoSuchKey("uploads", "k")))
	assert.True(t, network.IsObjectNotFound(minio.ErrorResponse{StatusCode: 404}))
	assert.False(t, network.IsObjectNotFound(minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}))
	assert.False(t, network.IsObjectNotFound(testutil.ServiceUnavailable()))
	assert.False(t, network.IsObjectNotFound(nil))
	assert.False(t, network.IsObjectNotFound(errors.New("not found")))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", network.Describe(nil))
	assert.Equal(t, "Please reduce your request rate. (status 503)", network.Describe(testutil.ServiceUnavailable()))
	assert.Equal(t, "gone", network.Describe(service.NewStoreError("get", "b", "k", service.KindNotFound, "gone", nil)))
	assert.Equal(t, "missing (status 404)",
		network.Describe(service.NewHttpError("missing", nil, http.MethodGet, "http://x", 404)))
	assert.Equal(t, testutil.ConnectionReset.Error(), network.Describe(testutil.ConnectionReset))
}
