package playlist

import (
	"fmt"
	"strconv"
	"strings"
)

// parseAttributes scans an HLS attribute list (RFC 8216 §4.2) into a map.
// Quoted values lose their quotes; enumerated and decimal values are kept
// verbatim for the caller to interpret.
func parseAttributes(s string) (map[string]string, error) {
	attrs := make(map[string]string)
	rest := strings.TrimSpace(s)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("attribute without value near %q", rest)
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]

		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted value for %s", key)
			}
			val = rest[1 : 1+end]
			rest = rest[2+end:]
			rest = strings.TrimPrefix(rest, ",")
		} else if comma := strings.IndexByte(rest, ','); comma >= 0 {
			val = rest[:comma]
			rest = rest[comma+1:]
		} else {
			val = rest
			rest = ""
		}
		attrs[key] = strings.TrimSpace(val)
	}
	return attrs, nil
}

// parseResolution parses a "WxH" decimal-resolution attribute value.
func parseResolution(s string) (width, height int, err error) {
	x := strings.IndexByte(s, 'x')
	if x < 0 {
		x = strings.IndexByte(s, 'X')
	}
	if x < 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q", s)
	}
	width, err = strconv.Atoi(s[:x])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", s)
	}
	height, err = strconv.Atoi(s[x+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", s)
	}
	return width, height, nil
}

// parseByteRange parses an "n[@o]" byterange value. When the offset is
// omitted the range continues at prev's end; prev may be nil, in which case
// the offset defaults to zero per the tolerant reading most parsers apply.
func parseByteRange(s string, prev *ByteRange) (*ByteRange, error) {
	lengthPart := s
	var offset int64
	hasOffset := false
	if at := strings.IndexByte(s, '@'); at >= 0 {
		lengthPart = s[:at]
		o, err := strconv.ParseInt(s[at+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid byterange offset %q", s)
		}
		offset = o
		hasOffset = true
	}
	length, err := strconv.ParseInt(lengthPart, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid byterange length %q", s)
	}
	if !hasOffset && prev != nil {
		offset = prev.Offset + prev.Length
	}
	return &ByteRange{Length: length, Offset: offset}, nil
}

func isYes(s string) bool {
	return strings.EqualFold(s, "YES")
}
