package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the hex SHA-256 of data. The pipeline hashes the encoded
// conditioning image with it, so identical pixels share a cache entry.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashKey returns "<kind>:" followed by the hash of the JSON encoding of
// parts. Struct fields are encoded in declaration order, so the key is
// stable across runs.
func hashKey(kind string, parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		// Only unsupported types fail; every caller passes strings and
		// plain structs.
		panic("cache: unhashable key parts: " + err.Error())
	}
	return kind + ":" + Hash(data)
}
