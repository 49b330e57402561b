package service

import (
	"encoding/json"
	"time"
)

// FileContent is a file as the upload flow hands it over: the raw bytes
// plus what the client knows about them.
type FileContent struct {
	Data         []byte
	LastModified time.Time
	MimeType     string
	Name         string
}

func NewFileContent(name, mimeType string, data []byte) *FileContent {
	return &FileContent{
		Data:         data,
		LastModified: time.Now().UTC(),
		MimeType:     mimeType,
		Name:         name,
	}
}

// Size returns the length of the file's content in bytes.
func (f *FileContent) Size() int64 {
	return int64(len(f.Data))
}

// CacheMetadata describes a cached file. The core fields are required.
// Extra holds optional per-caller fields such as remote headers, a
// preview, the total row count, a validation result or the resolved
// remote key.
type CacheMetadata struct {
	CachedAt     time.Time      `json:"cachedAt"`
	DisplayName  string         `json:"displayName"`
	Extra        map[string]any `json:"extra,omitempty"`
	LastModified time.Time      `json:"lastModified"`
	MimeType     string         `json:"mimeType"`
	PurposeTag   string         `json:"purposeTag"`
	Size         int64          `json:"size"`
}

func CacheMetadataFromJson(data []byte) (*CacheMetadata, error) {
	meta := &CacheMetadata{}
	err := json.Unmarshal(data, meta)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (meta *CacheMetadata) ToJson() ([]byte, error) {
	return json.Marshal(meta)
}

// SetExtra sets an optional metadata field.
func (meta *CacheMetadata) SetExtra(name string, value any) {
	if meta.Extra == nil {
		meta.Extra = make(map[string]any)
	}
	meta.Extra[name] = value
}

// ExtraString returns the named optional field if it is a string.
func (meta *CacheMetadata) ExtraString(name string) string {
	if meta.Extra == nil {
		return ""
	}
	value, _ := meta.Extra[name].(string)
	return value
}

// Age returns how long ago the entry was cached, relative to now.
func (meta *CacheMetadata) Age(now time.Time) time.Duration {
	return now.Sub(meta.CachedAt)
}

// CacheEntry is a cached file: its id, content and metadata.
type CacheEntry struct {
	Content  []byte
	ID       string
	Metadata *CacheMetadata
}

// File rebuilds the FileContent that was originally cached.
func (entry *CacheEntry) File() *FileContent {
	return &FileContent{
		Data:         entry.Content,
		LastModified: entry.Metadata.LastModified,
		MimeType:     entry.Metadata.MimeType,
		Name:         entry.Metadata.DisplayName,
	}
}

// CacheEntryStats is one row of the per-entry breakdown in CacheStats.
type CacheEntryStats struct {
	Age         time.Duration `json:"age"`
	CachedAt    time.Time     `json:"cachedAt"`
	DisplayName string        `json:"displayName"`
	ID          string        `json:"id"`
	PurposeTag  string        `json:"purposeTag"`
	Size        int64         `json:"size"`
	StoredBytes int64         `json:"storedBytes"`
}

// CacheStats is diagnostic output. Nothing in this module makes
// decisions based on it.
//
// TotalBytes is the sum of content sizes. StoredBytes adds the stored
// metadata and is what counts against the quota.
type CacheStats struct {
	Entries      []*CacheEntryStats `json:"entries"`
	EntryCount   int                `json:"entryCount"`
	MaxEntrySize int64              `json:"maxEntrySize"`
	Quota        int64              `json:"quota"`
	StoredBytes  int64              `json:"storedBytes"`
	TotalBytes   int64              `json:"totalBytes"`
	UsagePercent float64            `json:"usagePercent"`
}
