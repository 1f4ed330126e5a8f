package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const keySep = "#"

// CacheKey derives the cache key for a read. encoding/json writes map keys in
// sorted order at every depth, so logically equal params produce the same key
// regardless of how the map was built.
func CacheKey(endpoint string, params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		// fmt also prints maps with sorted keys
		canonical = []byte(fmt.Sprint(params))
	}
	sum := blake2b.Sum256(canonical)
	return endpoint + keySep + hex.EncodeToString(sum[:16])
}

// keyEndpoint returns the endpoint a cache key was derived from
func keyEndpoint(key string) string {
	if i := strings.LastIndex(key, keySep); i >= 0 {
		return key[:i]
	}
	return key
}
