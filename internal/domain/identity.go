package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// CalculateFileHash generates the SHA-256 fingerprint of a file's bytes.
// Nothing in this module calls it; a job's content-hash fields are left
// empty.
func CalculateFileHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenerateCompositeID derives a stable SHA-256 id from a feed/indexer source
// name and its GUID, so the same item fetched twice never gets two history
// entries.
func GenerateCompositeID(source, guid string) string {
	input := fmt.Sprintf("%s-%s", source, guid)
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// DupeKeyFor derives the default dupe key when a job or feed item does not
// specify one explicitly: the display name with its extension stripped and
// lowercased.
func DupeKeyFor(displayName string) string {
	name := displayName
	if i := lastDot(name); i > 0 {
		name = name[:i]
	}
	return toLowerASCII(name)
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
