// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

// Integer is the set of fixed-width integers the text parsers produce.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// ParseDecimal parses an optionally negative decimal prefix of s.
// Parsing stops at the first non-digit. Overflow wraps.
func ParseDecimal[T Integer](s string) T {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	v := ParseUnsigned[T](s)
	if neg {
		return -v
	}
	return v
}

// ParseUnsigned parses the decimal digit prefix of s. Overflow wraps.
func ParseUnsigned[T Integer](s string) T {
	var v T
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + T(c-'0')
	}
	return v
}

// ParseHex parses the hexadecimal digit prefix of s, either case.
// Overflow wraps.
func ParseHex[T Integer](s string) T {
	var v T
	for i := 0; i < len(s); i++ {
		d, ok := hexDigit(s[i])
		if !ok {
			break
		}
		v = v*16 + T(d)
	}
	return v
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

const lowerHex = "0123456789abcdef"

// formatHex renders the low width nibbles of v, most significant first.
func formatHex(v uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = lowerHex[v&15]
		v >>= 4
	}
	return string(buf)
}
