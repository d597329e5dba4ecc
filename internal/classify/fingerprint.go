// Package classify implements LLM-driven intent resolution: fingerprinting,
// the classifier call with its batch contract, and the taxonomy resolver.
package classify

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint computes a stable SHA-256 fingerprint for a set of ticket
// texts. Equal multisets of texts produce the same fingerprint regardless of
// input ordering, so a reshuffled batch hits the same cache entry.
func Fingerprint(texts []string) string {
	sorted := make([]string, len(texts))
	copy(sorted, texts)
	sort.Strings(sorted)

	encoded, err := json.Marshal(sorted)
	if err != nil {
		// A []string never fails to marshal; keep the signature simple.
		panic(err)
	}
	hash := sha256.Sum256(encoded)
	return fmt.Sprintf("%x", hash)
}
