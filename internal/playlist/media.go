package playlist

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseMediaPlaylist parses a single rendition's playlist, resolving every
// URI against base. The returned playlist is live when no EXT-X-ENDLIST
// marker is present.
func ParseMediaPlaylist(text string, base *url.URL) (*MediaPlaylist, error) {
	lines := splitLines(text)
	if len(lines) == 0 || lines[0].text != "#EXTM3U" {
		return nil, &ParseError{Line: 1, Tag: "EXTM3U", Reason: "missing #EXTM3U header"}
	}

	pl := &MediaPlaylist{Live: true}
	sawTargetDuration := false
	ended := false

	// Per-segment tags accumulate until the URI line closes the segment.
	var pendingDuration float64
	var havePendingDuration bool
	var pendingRange *ByteRange
	var lastRange *ByteRange

	for _, ln := range lines[1:] {
		switch {
		case strings.HasPrefix(ln.text, "#EXT-X-VERSION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(ln.text, "#EXT-X-VERSION:"))
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-VERSION", Reason: "not an integer"}
			}
			pl.Version = v

		case strings.HasPrefix(ln.text, "#EXT-X-TARGETDURATION:"):
			d, err := strconv.ParseFloat(strings.TrimPrefix(ln.text, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil || d <= 0 {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-TARGETDURATION", Reason: "invalid duration"}
			}
			pl.TargetDuration = d
			sawTargetDuration = true

		case strings.HasPrefix(ln.text, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.ParseInt(strings.TrimPrefix(ln.text, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			if err != nil || n < 0 {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MEDIA-SEQUENCE", Reason: "invalid sequence number"}
			}
			// Segments are numbered as they are parsed, so the tag must
			// appear before the first one (RFC 8216 section 4.3.3.2).
			if len(pl.Segments) > 0 {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MEDIA-SEQUENCE", Reason: "must precede the first segment"}
			}
			pl.MediaSequence = n

		case strings.HasPrefix(ln.text, "#EXT-X-PLAYLIST-TYPE:"):
			pl.PlaylistType = strings.TrimPrefix(ln.text, "#EXT-X-PLAYLIST-TYPE:")

		case strings.HasPrefix(ln.text, "#EXT-X-MAP:"):
			attrs, err := parseAttributes(strings.TrimPrefix(ln.text, "#EXT-X-MAP:"))
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MAP", Reason: err.Error()}
			}
			uri, ok := attrs["URI"]
			if !ok || uri == "" {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MAP", Reason: "URI attribute is required"}
			}
			resolved, err := resolveURI(base, uri)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MAP", Reason: "invalid URI value"}
			}
			init := &InitSegment{URI: resolved}
			if br, ok := attrs["BYTERANGE"]; ok {
				r, err := parseByteRange(br, nil)
				if err != nil {
					return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MAP", Reason: err.Error()}
				}
				init.ByteRange = r
			}
			pl.Init = init

		case strings.HasPrefix(ln.text, "#EXTINF:"):
			value := strings.TrimPrefix(ln.text, "#EXTINF:")
			if comma := strings.IndexByte(value, ','); comma >= 0 {
				value = value[:comma] // the remainder is an optional title
			}
			d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || d < 0 {
				return nil, &ParseError{Line: ln.num, Tag: "EXTINF", Reason: "invalid duration"}
			}
			pendingDuration = d
			havePendingDuration = true

		case strings.HasPrefix(ln.text, "#EXT-X-BYTERANGE:"):
			r, err := parseByteRange(strings.TrimPrefix(ln.text, "#EXT-X-BYTERANGE:"), lastRange)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-BYTERANGE", Reason: err.Error()}
			}
			pendingRange = r

		case ln.text == "#EXT-X-ENDLIST":
			ended = true
			pl.Live = false

		case !strings.HasPrefix(ln.text, "#"):
			if !havePendingDuration {
				return nil, &ParseError{Line: ln.num, Reason: "segment URI without a preceding EXTINF"}
			}
			if ended {
				return nil, &ParseError{Line: ln.num, Reason: "segment after EXT-X-ENDLIST"}
			}
			uri, err := resolveURI(base, ln.text)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Reason: "invalid segment URI"}
			}
			pl.Segments = append(pl.Segments, Segment{
				URI:       uri,
				Duration:  pendingDuration,
				Sequence:  pl.MediaSequence + int64(len(pl.Segments)),
				ByteRange: pendingRange,
			})
			if pendingRange != nil {
				lastRange = pendingRange
			}
			pendingDuration = 0
			havePendingDuration = false
			pendingRange = nil

		default:
			// Unknown tags and comments are ignored.
		}
	}

	if havePendingDuration {
		return nil, &ParseError{Line: lines[len(lines)-1].num, Tag: "EXTINF", Reason: "EXTINF without a segment URI"}
	}
	if !sawTargetDuration {
		return nil, &ParseError{Line: lines[len(lines)-1].num, Tag: "EXT-X-TARGETDURATION", Reason: "missing EXT-X-TARGETDURATION"}
	}
	return pl, nil
}
