// Package idgen mints the service's opaque identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// idBytes gives 24 hex characters of entropy after the prefix.
const idBytes = 12

// WithPrefix returns a random identifier of the form kind_hex24,
// e.g. WithPrefix("txn") -> "txn_3f9a...". Kinds in use: txn, rsk, alr, va.
func WithPrefix(kind string) string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return kind + "_" + hex.EncodeToString(b)
}
