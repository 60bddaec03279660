package domain

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/zeebo/blake3"
)

// FingerprintPrefixRunes is how much normalized text goes into a fingerprint
const FingerprintPrefixRunes = 200

// fingerprintKey keys the BLAKE3 hash so fingerprints never collide with other hashes
var fingerprintKey = [32]byte{
	'c', 'h', 'a', 'n', 'n', 'e', 'l', 'r', 'e', 'l', 'a', 'y', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Fingerprint identifies the content of a post independent of delivery path
type Fingerprint string

// NewFingerprint hashes the normalized text prefix together with the publish time
func NewFingerprint(text string, ts time.Time) Fingerprint {
	prefix := []rune(NormalizeText(text))
	if len(prefix) > FingerprintPrefixRunes {
		prefix = prefix[:FingerprintPrefixRunes]
	}

	// NewKeyed only fails on a key that is not 32 bytes
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("domain: fingerprint key: " + err.Error())
	}
	hasher.Write([]byte(string(prefix)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))

	return Fingerprint(hex.EncodeToString(hasher.Sum(nil)))
}

// NormalizeText lowercases text and collapses whitespace runs into single spaces
func NormalizeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
