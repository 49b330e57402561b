package service

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheetbridge/persistence/constants"
)

// StoredObject is a blob in the backing store. Content is nil for
// objects that came from a listing.
type StoredObject struct {
	Bucket      string    `json:"bucket"`
	Content     []byte    `json:"-"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
}

// BaseName returns the last path component of the object's key.
func (obj *StoredObject) BaseName() string {
	return path.Base(obj.Key)
}

// SortNewestFirst sorts objects by CreatedAt, most recent first. Objects
// created at the same instant keep their listing order.
func SortNewestFirst(objects []*StoredObject) {
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
}

var canonicalKey *regexp.Regexp

func init() {
	prefixes := make([]string, 0, len(constants.TypePrefixes))
	for _, prefix := range constants.TypePrefixes {
		prefixes = append(prefixes, regexp.QuoteMeta(prefix))
	}
	sort.Strings(prefixes)
	canonicalKey = regexp.MustCompile(
		`^(` + strings.Join(prefixes, "|") + `)-[^/\s]+-\d+(\.[A-Za-z0-9]+)?$`)
}

// IsCanonicalKey returns true if key has the shape of a key this layer
// assigns: type prefix, id, and a numeric timestamp or sequence suffix,
// optionally followed by an extension. For example,
// "orderFile-17-2459.xlsx".
func IsCanonicalKey(key string) bool {
	return canonicalKey.MatchString(key)
}

// NewObjectKey returns a canonical key for a new upload. If id is
// empty, a short random id is generated.
func NewObjectKey(typePrefix, id, ext string, now time.Time) string {
	if id == "" {
		id = strings.Split(uuid.NewString(), "-")[0]
	}
	id = strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' || r == '\t' {
			return '_'
		}
		return r
	}, id)
	key := fmt.Sprintf("%s-%s-%d", typePrefix, id, now.UnixMilli())
	ext = strings.TrimPrefix(ext, ".")
	if ext != "" {
		key = key + "." + ext
	}
	return key
}
