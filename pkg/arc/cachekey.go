package arc

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CacheKey computes the SHA-256 fingerprint of the deterministic inputs of a
// turn: system prompt, user prompt, sorted tool names, and model. Tool order
// does not affect the key.
func CacheKey(systemPrompt, userPrompt string, toolNames []string, model string) string {
	sorted := append([]string(nil), toolNames...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{'|'})
	h.Write([]byte(userPrompt))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{'|'})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}
