package gateway

import "strings"

const upperhex = "0123456789ABCDEF"

// EncodeUUID prepares an event uuid for embedding in a URL path. The provider
// expects ids that start with "/" or contain "//" to be URL-encoded twice;
// every other id is used verbatim.
func EncodeUUID(id string) string {
	if strings.HasPrefix(id, "/") || strings.Contains(id, "//") {
		return escape(escape(id))
	}
	return id
}

// escape percent-encodes every byte outside the unreserved set, so "/" "+"
// and "=" are all encoded.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}
