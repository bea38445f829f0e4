// Package textproc canonicalizes raw document text and splits it into
// overlapping fixed-size chunks with stable byte offsets.
package textproc

import (
	"regexp"
	"strings"
)

var horizontalWS = regexp.MustCompile(`[ \t]+`)

// Normalize canonicalizes raw text: CRLF and CR line endings become a
// single LF, runs of horizontal whitespace collapse to one space, and
// leading/trailing whitespace is trimmed. Empty input yields empty output.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalWS.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
