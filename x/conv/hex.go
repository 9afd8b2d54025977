package conv

const hexUpper = "0123456789ABCDEF"

// AppendHex appends each byte of p as two uppercase hex digits, without
// separators or a 0x prefix.
func AppendHex(dst []byte, p ...byte) []byte {
	for _, b := range p {
		dst = append(dst, hexUpper[b>>4], hexUpper[b&0xF])
	}
	return dst
}

// MAC formats a hardware address as colon-separated uppercase hex.
func MAC(mac [6]byte) string {
	buf := make([]byte, 0, 17)
	for i, b := range mac {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = AppendHex(buf, b)
	}
	return string(buf)
}
