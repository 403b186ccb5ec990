package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeFactText canonicalizes fact text for identity purposes:
// lower-cased, whitespace collapsed, trailing sentence punctuation dropped.
func NormalizeFactText(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRightFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// FactKey derives the stable fact ID from the normalized text and the
// owning (user, session) pair. Identical content re-extracted for the same
// scope maps to the same key, so ingestion refreshes instead of duplicating.
func FactKey(text, userID, sessionID string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeFactText(text)))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	return hex.EncodeToString(h.Sum(nil))
}
