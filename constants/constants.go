package constants

import (
	"strings"
	"time"
)

const (
	BucketGenerated          = "generated"
	BucketMappingDefinitions = "mapping-definitions"
	BucketUploads            = "uploads"
	CacheContentKeyPrefix    = "content:"
	CacheMetaKeyPrefix       = "meta:"
	CacheVersionKey          = "cache:version"
	ExtraRemoteHeaders       = "remoteHeaders"
	ExtraRemoteKey           = "remoteKey"
	ExtraPreview             = "preview"
	ExtraTotalRowCount       = "totalRowCount"
	ExtraValidationResult    = "validationResult"
	LegacyKeyPrefix          = ""
	MappingHashKey           = "file_mappings"
	MappingKeyPrefix         = "fm_"
	MimeTypeCSV              = "text/csv"
	MimeTypeJSON             = "application/json"
	MimeTypeOctetStream      = "application/octet-stream"
	MimeTypeXLSX             = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	NamespacedKeyPrefix      = "files/"
	PurposeMapping           = "mapping"
	PurposeOrder             = "order"
	PurposeOutput            = "output"
	PurposeSupplier          = "supplier"
	SafeEncodingPrefix       = "enc-"
	StrategyCanonical        = "canonical"
	StrategyLegacyExact      = "legacy-exact"
	StrategyMapping          = "mapping"
	StrategyNamespacedExact  = "namespaced-exact"
	StrategyTypePrefix       = "type-prefix"
)

// Remote store retry settings. Delays are in the units the backoff
// formula is written in: base and max backoff, jitter ceiling, and the
// circuit delay parameters.
const (
	BackoffBase          = 1000 * time.Millisecond
	BackoffMax           = 10000 * time.Millisecond
	BackoffJitterMax     = 1000 * time.Millisecond
	CircuitDelayBase     = 5000 * time.Millisecond
	CircuitDelayMax      = 15000 * time.Millisecond
	CircuitDelayStep     = 2000 * time.Millisecond
	CircuitFailureFloor  = 2
	DefaultGetAttempts   = 7
	DefaultGetTimeout    = 30 * time.Second
	DefaultListAttempts  = 3
	DefaultListLimit     = 1000
	DefaultPutAttempts   = 5
	DefaultPutTimeout    = 25 * time.Second
	DefaultDeleteTimeout = 25 * time.Second
	MaxDecodeRounds      = 3
)

// Local cache defaults.
const (
	DefaultCacheMaxEntry = int64(5 * 1024 * 1024)
	DefaultCacheQuota    = int64(50 * 1024 * 1024)
	DefaultCacheTTL      = 7 * 24 * time.Hour
	DefaultMappingMemo   = 512
)

// TypePrefixes maps the type hint a caller passes to the resolver to
// the prefix every canonical key of that type starts with.
var TypePrefixes = map[string]string{
	PurposeMapping:  "mappingFile",
	PurposeOrder:    "orderFile",
	PurposeOutput:   "purchaseOrderFile",
	PurposeSupplier: "supplierFile",
}

var Buckets = []string{
	BucketGenerated,
	BucketMappingDefinitions,
	BucketUploads,
}

var Purposes = []string{
	PurposeMapping,
	PurposeOrder,
	PurposeOutput,
	PurposeSupplier,
}

// TypePrefixFor returns the canonical key prefix for typeHint, or an
// empty string if the hint is unknown.
func TypePrefixFor(typeHint string) string {
	return TypePrefixes[typeHint]
}

// MimeTypeForExtension covers the file types callers upload. Anything
// else is stored as application/octet-stream.
var MimeTypeForExtension = map[string]string{
	"csv":  MimeTypeCSV,
	"json": MimeTypeJSON,
	"xlsx": MimeTypeXLSX,
}

// MimeTypeFor returns the mime type for a file extension without the
// leading dot.
func MimeTypeFor(extension string) string {
	if mimeType, ok := MimeTypeForExtension[strings.ToLower(extension)]; ok {
		return mimeType
	}
	return MimeTypeOctetStream
}
