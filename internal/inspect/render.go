package inspect

import "strings"

const hexDigits = "0123456789ABCDEF"

// renderHex formats up to limit bytes of b as space separated upper-case
// hex pairs. A trailing "..." marks truncation.
func renderHex(b []byte, limit int) string {
	n := clip(len(b), limit)
	if n == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(n*3 + 3)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(hexDigits[b[i]>>4])
		sb.WriteByte(hexDigits[b[i]&0x0F])
	}
	if n < len(b) {
		sb.WriteString(" ...")
	}
	return sb.String()
}

// renderASCII formats up to limit bytes of b, replacing non-printable
// bytes with '.'.
func renderASCII(b []byte, limit int) string {
	n := clip(len(b), limit)
	if n == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(n + 3)
	for i := 0; i < n; i++ {
		c := b[i]
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		sb.WriteByte(c)
	}
	if n < len(b) {
		sb.WriteString("...")
	}
	return sb.String()
}

func clip(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
