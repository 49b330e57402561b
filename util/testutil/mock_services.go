package testutil

import (
	"net/http"
	"sync/atomic"
)

// These functions mock the public URL endpoint of the blob service.

// Returns an http handler function that returns the specified
// string, along with the specified headers.
func HttpStringResponder(headers map[string]string, data string) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		setHeaders(w, headers)
		w.Write([]byte(data))
	}
	return http.HandlerFunc(f)
}

// Returns an http handler function that always responds with the
// specified status code and a short body.
func HttpStatusResponder(status int) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}
	return http.HandlerFunc(f)
}

// CountingHandler wraps an http.Handler and counts the requests it
// serves, remembering the path of the most recent one.
type CountingHandler struct {
	Handler  http.Handler
	count    int64
	lastPath atomic.Value
}

func (h *CountingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.count, 1)
	h.lastPath.Store(r.URL.EscapedPath())
	h.Handler.ServeHTTP(w, r)
}

func (h *CountingHandler) Count() int {
	return int(atomic.LoadInt64(&h.count))
}

func (h *CountingHandler) LastPath() string {
	p, _ := h.lastPath.Load().(string)
	return p
}

func setHeaders(w http.ResponseWriter, headers map[string]string) {
	if headers != nil {
		for key, value := range headers {
			w.Header().Set(key, value)
		}
	}
}
