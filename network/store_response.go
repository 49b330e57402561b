package network

import (
	"github.com/sheetbridge/persistence/models/service"
)

// StoreResponse is the result of a put, get or delete. Always check
// OK() (or Error) before using anything else.
type StoreResponse struct {
	// Attempts is the number of attempts made against the backing
	// store. The public URL fallback is not counted.
	Attempts int

	Bucket string

	// Key is the key that was written or read. For reads, this is the
	// candidate that actually matched, which may differ from the key
	// the caller asked for.
	Key string

	// Object is the object read by Get. It is nil for other operations.
	Object *service.StoredObject

	// UsedFallback is true if Get read the object from its public URL.
	UsedFallback bool

	// Error is nil on success. Otherwise it is a *service.StoreError.
	Error error
}

// OK returns true if the operation succeeded.
func (resp *StoreResponse) OK() bool {
	return resp.Error == nil
}

// Reason returns a human-readable failure reason, or an empty string.
func (resp *StoreResponse) Reason() string {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Error()
}

// Kind returns the kind of failure. Only meaningful when OK() is false.
func (resp *StoreResponse) Kind() service.ErrorKind {
	return service.KindOf(resp.Error)
}

// Content returns the bytes read by Get, or nil.
func (resp *StoreResponse) Content() []byte {
	if resp.Object == nil {
		return nil
	}
	return resp.Object.Content
}

// ListResponse is the result of a List call.
type ListResponse struct {
	Attempts int
	Bucket   string
	Prefix   string

	// Objects are sorted newest first. Their Content is nil.
	Objects []*service.StoredObject

	Error error
}

func (resp *ListResponse) OK() bool {
	return resp.Error == nil
}

// Keys returns the keys of the listed objects, newest first.
func (resp *ListResponse) Keys() []string {
	keys := make([]string, len(resp.Objects))
	for i, obj := range resp.Objects {
		keys[i] = obj.Key
	}
	return keys
}
