package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sheetbridge/persistence/models/service"
)

// PublicFetcher reads objects through their public URL, without
// credentials. The remote store uses it as a last resort when
// authenticated reads keep failing.
type PublicFetcher struct {
	BaseURL    string
	httpClient *http.Client
}

// NewPublicFetcher returns a fetcher for objects published under
// baseURL, laid out as <baseURL>/<bucket>/<key>.
func NewPublicFetcher(baseURL string, timeout time.Duration) *PublicFetcher {
	return &PublicFetcher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URLFor returns the public URL of bucket/key. Each key segment is
// escaped, so keys with spaces or percent signs stay intact.
func (f *PublicFetcher) URLFor(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", f.BaseURL, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// Fetch downloads bucket/key from its public URL.
func (f *PublicFetcher) Fetch(ctx context.Context, bucket, key string) (*service.StoredObject, error) {
	if f == nil || f.BaseURL == "" {
		return nil, service.NewHttpError("No public URL is configured", nil, http.MethodGet, "", 0)
	}
	objURL := f.URLFor(bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objURL, nil)
	if err != nil {
		return nil, service.NewHttpError("Cannot build public URL request", err, http.MethodGet, objURL, 0)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, service.NewHttpError("Public URL request failed", err, http.MethodGet, objURL, 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, service.NewHttpError(
			fmt.Sprintf("Public URL returned %s", resp.Status), nil, http.MethodGet, objURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.NewHttpError("Cannot read public URL response", err, http.MethodGet, objURL, resp.StatusCode)
	}
	createdAt := time.Now().UTC()
	if lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		createdAt = lastModified
	}
	return &service.StoredObject{
		Bucket:      bucket,
		Content:     data,
		ContentType: resp.Header.Get("Content-Type"),
		CreatedAt:   createdAt,
		Key:         key,
		Size:        int64(len(data)),
	}, nil
}
