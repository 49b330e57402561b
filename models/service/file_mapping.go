package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sheetbridge/persistence/constants"
)

// FileMappingRecord maps a reference a caller holds (originalId) to the
// key under which the object is actually stored. Records are replaced
// whole, never updated in place.
type FileMappingRecord struct {
	ActualKey        string            `json:"actualFileName"`
	Bucket           string            `json:"bucket"`
	CreatedAt        time.Time         `json:"createdAt"`
	Flags            map[string]string `json:"flags,omitempty"`
	MimeType         string            `json:"mimeType,omitempty"`
	OriginalFileName string            `json:"originalFileName"`
	OriginalID       string            `json:"originalId"`
	Size             int64             `json:"fileSize,omitempty"`
}

func NewFileMappingRecord(originalID, actualKey, originalFileName, bucket string) *FileMappingRecord {
	return &FileMappingRecord{
		ActualKey:        actualKey,
		Bucket:           bucket,
		CreatedAt:        time.Now().UTC(),
		Flags:            make(map[string]string),
		OriginalFileName: originalFileName,
		OriginalID:       originalID,
	}
}

func FileMappingRecordFromJson(jsonData string) (*FileMappingRecord, error) {
	record := &FileMappingRecord{}
	err := json.Unmarshal([]byte(jsonData), record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (record *FileMappingRecord) ToJson() (string, error) {
	bytes, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// StorageKey returns the sanitized key under which this record is
// persisted.
func (record *FileMappingRecord) StorageKey() string {
	return MappingKey(record.OriginalID)
}

// Validate returns an error if the record is missing a required field.
func (record *FileMappingRecord) Validate() error {
	missing := make([]string, 0)
	if record.OriginalID == "" {
		missing = append(missing, "originalId")
	}
	if record.ActualKey == "" {
		missing = append(missing, "actualFileName")
	}
	if record.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("Mapping record is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// MappingKey sanitizes an arbitrary reference into a string that is safe
// to use as a storage key. The encoding is reversible.
func MappingKey(originalID string) string {
	return constants.MappingKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(originalID))
}

// SafeEncode makes id safe for use inside a storage key. SafeDecode
// reverses it.
func SafeEncode(id string) string {
	return constants.SafeEncodingPrefix + base64.RawURLEncoding.EncodeToString([]byte(id))
}

// SafeDecode reverses SafeEncode. It returns false if s was not produced
// by SafeEncode.
func SafeDecode(s string) (string, bool) {
	if !strings.HasPrefix(s, constants.SafeEncodingPrefix) {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, constants.SafeEncodingPrefix))
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	return string(decoded), true
}
