package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize composes text to NFC and collapses whitespace. Korean place names
// arrive both precomposed and as conjoining jamo depending on the client.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
