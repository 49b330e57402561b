package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sheetbridge/persistence/models/service"
)

// FaultFunc decides whether a call to the fake blob client should fail.
// Param call is the 1-based number of calls made so far for op. Return
// nil to let the call through.
type FaultFunc func(op, bucket, key string, call int) error

// FakeBlobClient is an in-memory blob store with hooks for injecting
// failures and delays. It implements network.BlobClient.
type FakeBlobClient struct {
	// Delay, if set, makes every call wait this long (or until its
	// context is done) before doing anything.
	Delay time.Duration

	// Fault, if set, is consulted before every call.
	Fault FaultFunc

	// Now supplies CreatedAt for new objects. Defaults to time.Now.
	Now func() time.Time

	mutex   sync.Mutex
	objects map[string]*service.StoredObject
	calls   map[string]int
	keys    map[string][]string
}

func NewFakeBlobClient() *FakeBlobClient {
	return &FakeBlobClient{
		Now:     time.Now,
		objects: make(map[string]*service.StoredObject),
		calls:   make(map[string]int),
		keys:    make(map[string][]string),
	}
}

// Seed stores an object directly, without counting a call.
func (c *FakeBlobClient) Seed(bucket, key string, data []byte, createdAt time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.objects[bucket+"/"+key] = &service.StoredObject{
		Bucket:      bucket,
		Content:     data,
		ContentType: "application/octet-stream",
		CreatedAt:   createdAt,
		Key:         key,
		Size:        int64(len(data)),
	}
}

// Has returns true if bucket/key exists.
func (c *FakeBlobClient) Has(bucket, key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.objects[bucket+"/"+key]
	return ok
}

// Calls returns the number of calls made for op: "put", "get",
// "remove" or "list".
func (c *FakeBlobClient) Calls(op string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calls[op]
}

// KeysRequested returns the keys passed to op, in call order.
func (c *FakeBlobClient) KeysRequested(op string) []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.keys[op]...)
}

func (c *FakeBlobClient) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := c.enter(ctx, "put", bucket, key); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	content := append([]byte(nil), data...)
	c.objects[bucket+"/"+key] = &service.StoredObject{
		Bucket:      bucket,
		Content:     content,
		ContentType: contentType,
		CreatedAt:   c.Now().UTC(),
		Key:         key,
		Size:        int64(len(content)),
	}
	return nil
}

func (c *FakeBlobClient) GetObject(ctx context.Context, bucket, key string) (*service.StoredObject, error) {
	if err := c.enter(ctx, "get", bucket, key); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	obj, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, NoSuchKey(bucket, key)
	}
	copied := *obj
	copied.Content = append([]byte(nil), obj.Content...)
	return &copied, nil
}

func (c *FakeBlobClient) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := c.enter(ctx, "remove", bucket, key); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.objects, bucket+"/"+key)
	return nil
}

func (c *FakeBlobClient) ListObjects(ctx context.Context, bucket, prefix string) ([]*service.StoredObject, error) {
	if err := c.enter(ctx, "list", bucket, prefix); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	objects := make([]*service.StoredObject, 0)
	for _, obj := range c.objects {
		if obj.Bucket == bucket && strings.HasPrefix(obj.Key, prefix) {
			listed := *obj
			listed.Content = nil
			objects = append(objects, &listed)
		}
	}
	// Like S3, listings come back in key order.
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (c *FakeBlobClient) enter(ctx context.Context, op, bucket, key string) error {
	c.mutex.Lock()
	c.calls[op]++
	call := c.calls[op]
	c.keys[op] = append(c.keys[op], key)
	fault := c.Fault
	delay := c.Delay
	c.mutex.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fault != nil {
		return fault(op, bucket, key, call)
	}
	return nil
}

// NoSuchKey returns the error S3 returns for a missing key.
func NoSuchKey(bucket, key string) error {
	return minio.ErrorResponse{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist.",
		BucketName: bucket,
		Key:        key,
		StatusCode: http.StatusNotFound,
	}
}

// ServiceUnavailable returns a 503 response error.
func ServiceUnavailable() error {
	return minio.ErrorResponse{
		Code:       "ServiceUnavailable",
		Message:    "Please reduce your request rate.",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// AccessDenied returns a 403 response error.
func AccessDenied(bucket, key string) error {
	return minio.ErrorResponse{
		Code:       "AccessDenied",
		Message:    "Access Denied",
		BucketName: bucket,
		Key:        key,
		StatusCode: http.StatusForbidden,
	}
}

// FailFirst returns a FaultFunc that fails the first n calls of op with
// err and lets everything else through.
func FailFirst(op string, n int, err error) FaultFunc {
	return func(callOp, bucket, key string, call int) error {
		if callOp == op && call <= n {
			return err
		}
		return nil
	}
}

// FailAlways returns a FaultFunc that fails every call of op with err.
func FailAlways(op string, err error) FaultFunc {
	return func(callOp, bucket, key string, call int) error {
		if callOp == op {
			return err
		}
		return nil
	}
}

// ConnectionReset is a transport-level error like the ones a flaky
// network produces.
var ConnectionReset = fmt.Errorf("read tcp 10.0.0.1:443: connection reset by peer")
