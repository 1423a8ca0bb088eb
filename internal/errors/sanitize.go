package errors

import "strings"

// Sanitize strips control characters from a user-facing message before it
// is printed or sent over the wire (§7 "All user-facing messages are
// sanitized").
func Sanitize(message string) string {
	var b strings.Builder
	b.Grow(len(message))
	for _, r := range message {
		if r == '\n' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
