package service_test

import (
	"testing"
	"time"

	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMetadataJson(t *testing.T) {
	meta := &service.CacheMetadata{
		CachedAt:    time.Now().UTC(),
		DisplayName: "orders.xlsx",
		MimeType:    constants.MimeTypeXLSX,
		PurposeTag:  constants.PurposeOrder,
		Size:        100,
	}
	meta.SetExtra(constants.ExtraRemoteKey, "orderFile-1-1.xlsx")
	meta.SetExtra(constants.ExtraTotalRowCount, 42)

	data, err := meta.ToJson()
	require.Nil(t, err)
	copied, err := service.CacheMetadataFromJson(data)
	require.Nil(t, err)
	assert.Equal(t, "orders.xlsx", copied.DisplayName)
	assert.Equal(t, "orderFile-1-1.xlsx", copied.ExtraString(constants.ExtraRemoteKey))
	assert.EqualValues(t, 42, copied.Extra[constants.ExtraTotalRowCount])
	assert.True(t, meta.CachedAt.Equal(copied.CachedAt))

	_, err = service.CacheMetadataFromJson([]byte("garbage"))
	assert.NotNil(t, err)
}

func TestCacheMetadataExtraString(t *testing.T) {
	meta := &service.CacheMetadata{}
	assert.Equal(t, "", meta.ExtraString(constants.ExtraRemoteKey))
	meta.SetExtra(constants.ExtraRemoteKey, 12)
	assert.Equal(t, "", meta.ExtraString(constants.ExtraRemoteKey))
}

func TestCacheEntryFile(t *testing.T) {
	modified := time.Now().Add(-time.Hour).UTC()
	entry := &service.CacheEntry{
		Content: []byte("a,b,c"),
		ID:      "order_orders.csv_5_text_csv",
		Metadata: &service.CacheMetadata{
			DisplayName:  "orders.csv",
			LastModified: modified,
			MimeType:     constants.MimeTypeCSV,
			Size:         5,
		},
	}
	file := entry.File()
	assert.Equal(t, "orders.csv", file.Name)
	assert.Equal(t, constants.MimeTypeCSV, file.MimeType)
	assert.Equal(t, modified, file.LastModified)
	assert.EqualValues(t, 5, file.Size())
}
