// Package dedup canonicalises entity names and merges duplicate entities
// within a group.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// corporate suffixes stripped during canonicalisation, longest first.
var corporateSuffixes = []string{
	"incorporated", "corporation", "company", "limited",
	"holdings", "group", "gmbh", "corp", "inc", "ltd", "llc", "plc", "co",
}

// CanonicalKey normalises an entity name for identity comparison: lowercase,
// punctuation stripped, whitespace collapsed, trailing corporate suffixes
// removed. CJK text keeps its characters with only whitespace and
// punctuation normalisation. The function is idempotent.
func CanonicalKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	lastSpace := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		case r == '&':
			// "&" reads as "and" in org names.
			if !lastSpace {
				b.WriteByte(' ')
			}
			b.WriteString("and")
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	key := strings.TrimSpace(b.String())

	if hasCJK(key) {
		// CJK names rarely carry Latin corporate suffixes worth stripping.
		return strings.Join(strings.Fields(key), " ")
	}

	words := strings.Fields(key)
	for len(words) > 1 {
		last := words[len(words)-1]
		if !isCorporateSuffix(last) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isCorporateSuffix(word string) bool {
	for _, s := range corporateSuffixes {
		if word == s {
			return true
		}
	}
	return false
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// EntityID derives the deterministic entity id from the group and the
// canonical key. Same name, same group, same id across runs.
func EntityID(groupID, name string) string {
	sum := sha256.Sum256([]byte(groupID + "\x00" + CanonicalKey(name)))
	return "ent_" + hex.EncodeToString(sum[:12])
}
