package resolver

import (
	"net/url"
	"strings"

	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
)

type decoder func(string) (string, bool)

// References pass through browsers, query strings and storage-key
// sanitizing, sometimes more than once. Each decoder undoes one layer.
var decoders = []decoder{
	func(s string) (string, bool) {
		decoded, err := url.PathUnescape(s)
		return decoded, err == nil
	},
	func(s string) (string, bool) {
		decoded, err := url.QueryUnescape(s)
		return decoded, err == nil
	},
	service.SafeDecode,
}

// Candidates returns reference followed by every distinct string
// reachable from it through at most constants.MaxDecodeRounds rounds of
// decoding. Order is stable: earlier rounds come first.
func Candidates(reference string) []string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return []string{}
	}
	seen := map[string]bool{reference: true}
	candidates := []string{reference}
	frontier := []string{reference}
	for round := 0; round < constants.MaxDecodeRounds && len(frontier) > 0; round++ {
		next := make([]string, 0)
		for _, s := range frontier {
			for _, decode := range decoders {
				decoded, ok := decode(s)
				decoded = strings.TrimSpace(decoded)
				if !ok || decoded == "" || seen[decoded] {
					continue
				}
				seen[decoded] = true
				candidates = append(candidates, decoded)
				next = append(next, decoded)
			}
		}
		frontier = next
	}
	return candidates
}
