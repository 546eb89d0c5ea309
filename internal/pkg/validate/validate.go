package validate

import "strings"

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// WithinLimit reports whether the value fits in max bytes. Zero max means
// no limit.
func WithinLimit(value string, max int) bool {
	return max <= 0 || len(value) <= max
}
