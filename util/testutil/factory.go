package testutil

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
)

var Bloomsday, _ = time.Parse(time.RFC3339, "1904-06-16T15:04:05Z")

const (
	OrderID       = "17"
	OrderFileName = "Order 17 (final).xlsx"
	SupplierID    = "acme supplies/2024"
)

// Bytes returns size bytes of repeating, printable test data.
func Bytes(size int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
}

// MB returns n megabytes of test data.
func MB(n float64) []byte {
	return Bytes(int(n * 1024 * 1024))
}

func GetFileContent(name string, size int) *service.FileContent {
	f := service.NewFileContent(name, constants.MimeTypeXLSX, Bytes(size))
	f.LastModified = Bloomsday
	return f
}

func GetFileMappingRecord(originalID, actualKey string) *service.FileMappingRecord {
	record := service.NewFileMappingRecord(originalID, actualKey, OrderFileName, constants.BucketGenerated)
	record.CreatedAt = Bloomsday
	record.MimeType = constants.MimeTypeXLSX
	record.Size = 2048
	return record
}

func GetCacheMetadata(name, purpose string, size int64, cachedAt time.Time) *service.CacheMetadata {
	return &service.CacheMetadata{
		CachedAt:     cachedAt,
		DisplayName:  name,
		LastModified: Bloomsday,
		MimeType:     constants.MimeTypeXLSX,
		PurposeTag:   purpose,
		Size:         size,
	}
}

// CanonicalKey returns a canonical key for purpose and id with a fixed
// sequence number.
func CanonicalKey(purpose, id string, seq int) string {
	return fmt.Sprintf("%s-%s-%d.xlsx", constants.TypePrefixFor(purpose), id, seq)
}
