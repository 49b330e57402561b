package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeriveID returns the cache id for a file. The same file, size, type
// and purpose always give the same id. The purpose is part of the id,
// so one file used for two purposes gets two entries.
func DeriveID(name string, size int64, mimeType, purposeTag string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s\x00%s", name, size, mimeType, purposeTag)))
	purpose := strings.Map(func(r rune) rune {
		if r == ':' || r == '/' || r == ' ' {
			return '_'
		}
		return r
	}, purposeTag)
	if purpose == "" {
		purpose = "none"
	}
	return purpose + "-" + hex.EncodeToString(sum[:12])
}
