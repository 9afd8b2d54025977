package strx

// Coalesce returns v if it is not the zero value of T, otherwise d.
// Config normalisation uses it for strings, durations and counts alike.
func Coalesce[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

// FitsBytes reports whether s is at most n bytes long (not runes: radio
// buffers are byte arrays).
func FitsBytes(s string, n int) bool { return len(s) <= n }
