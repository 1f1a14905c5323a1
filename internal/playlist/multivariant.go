package playlist

import (
	"net/url"
	"strconv"
	"strings"
)

type line struct {
	num  int // 1-based line number in the original text
	text string
}

// splitLines trims and drops blank lines while keeping original numbering
// for error reporting.
func splitLines(text string) []line {
	raw := strings.Split(text, "\n")
	lines := make([]line, 0, len(raw))
	for i, l := range raw {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		lines = append(lines, line{num: i + 1, text: t})
	}
	return lines
}

func resolveURI(base *url.URL, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}

// mediaOnlyTags must not appear in a multivariant playlist (RFC 8216 §4.3.3).
var mediaOnlyTags = []string{
	"#EXT-X-TARGETDURATION",
	"#EXT-X-MEDIA-SEQUENCE",
	"#EXTINF",
	"#EXT-X-ENDLIST",
	"#EXT-X-BYTERANGE",
	"#EXT-X-MAP",
}

// ParseMultivariant parses a root manifest, resolving every URI against
// base. A manifest with no variant streams is malformed: the engine would
// have nothing to select from.
func ParseMultivariant(text string, base *url.URL) (*MultivariantPlaylist, error) {
	lines := splitLines(text)
	if len(lines) == 0 || lines[0].text != "#EXTM3U" {
		return nil, &ParseError{Line: 1, Tag: "EXTM3U", Reason: "missing #EXTM3U header"}
	}

	pl := &MultivariantPlaylist{}
	var pending *Variant // EXT-X-STREAM-INF waiting for its URI line

	for _, ln := range lines[1:] {
		switch {
		case strings.HasPrefix(ln.text, "#EXT-X-VERSION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(ln.text, "#EXT-X-VERSION:"))
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-VERSION", Reason: "not an integer"}
			}
			pl.Version = v

		case ln.text == "#EXT-X-INDEPENDENT-SEGMENTS":
			pl.IndependentSegments = true

		case strings.HasPrefix(ln.text, "#EXT-X-MEDIA:"):
			attrs, err := parseAttributes(strings.TrimPrefix(ln.text, "#EXT-X-MEDIA:"))
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MEDIA", Reason: err.Error()}
			}
			rend, err := parseRendition(attrs, base)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-MEDIA", Reason: err.Error()}
			}
			pl.Renditions = append(pl.Renditions, rend)

		case strings.HasPrefix(ln.text, "#EXT-X-STREAM-INF:"):
			if pending != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-STREAM-INF", Reason: "previous variant has no URI line"}
			}
			attrs, err := parseAttributes(strings.TrimPrefix(ln.text, "#EXT-X-STREAM-INF:"))
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-STREAM-INF", Reason: err.Error()}
			}
			v, err := parseVariant(attrs)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Tag: "EXT-X-STREAM-INF", Reason: err.Error()}
			}
			pending = &v

		case !strings.HasPrefix(ln.text, "#"):
			if pending == nil {
				return nil, &ParseError{Line: ln.num, Reason: "URI line without a preceding EXT-X-STREAM-INF"}
			}
			uri, err := resolveURI(base, ln.text)
			if err != nil {
				return nil, &ParseError{Line: ln.num, Reason: "invalid variant URI"}
			}
			pending.URI = uri
			pl.Variants = append(pl.Variants, *pending)
			pending = nil

		default:
			for _, tag := range mediaOnlyTags {
				if strings.HasPrefix(ln.text, tag) {
					return nil, &ParseError{Line: ln.num, Tag: strings.TrimPrefix(tag, "#"), Reason: "media playlist tag in multivariant playlist"}
				}
			}
			// Unknown tags and comments are ignored.
		}
	}

	if pending != nil {
		return nil, &ParseError{Line: lines[len(lines)-1].num, Tag: "EXT-X-STREAM-INF", Reason: "variant has no URI line"}
	}
	if len(pl.Variants) == 0 {
		return nil, &ParseError{Line: lines[len(lines)-1].num, Reason: "no variant streams"}
	}
	return pl, nil
}

func parseVariant(attrs map[string]string) (Variant, error) {
	var v Variant

	bw, ok := attrs["BANDWIDTH"]
	if !ok {
		return v, strErr("BANDWIDTH attribute is required")
	}
	n, err := strconv.ParseInt(bw, 10, 64)
	if err != nil || n <= 0 {
		return v, strErr("invalid BANDWIDTH value")
	}
	v.Bandwidth = n

	if avg, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		if n, err := strconv.ParseInt(avg, 10, 64); err == nil {
			v.AverageBandwidth = n
		}
	}
	v.Codecs = attrs["CODECS"]
	if res, ok := attrs["RESOLUTION"]; ok {
		w, h, err := parseResolution(res)
		if err != nil {
			return v, err
		}
		v.Width, v.Height = w, h
	}
	if fr, ok := attrs["FRAME-RATE"]; ok {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			v.FrameRate = f
		}
	}
	v.Audio = attrs["AUDIO"]
	v.Subtitles = attrs["SUBTITLES"]
	return v, nil
}

func parseRendition(attrs map[string]string, base *url.URL) (AlternateRendition, error) {
	var r AlternateRendition

	r.Type = attrs["TYPE"]
	switch r.Type {
	case "AUDIO", "SUBTITLES", "CLOSED-CAPTIONS":
	case "":
		return r, strErr("TYPE attribute is required")
	default:
		return r, strErr("unknown TYPE " + strconv.Quote(r.Type))
	}

	r.GroupID = attrs["GROUP-ID"]
	if r.GroupID == "" {
		return r, strErr("GROUP-ID attribute is required")
	}
	r.Name = attrs["NAME"]
	if r.Name == "" {
		return r, strErr("NAME attribute is required")
	}
	r.Language = attrs["LANGUAGE"]
	r.Channels = attrs["CHANNELS"]
	r.Default = isYes(attrs["DEFAULT"])
	r.AutoSelect = isYes(attrs["AUTOSELECT"])

	if uri, ok := attrs["URI"]; ok && uri != "" {
		resolved, err := resolveURI(base, uri)
		if err != nil {
			return r, strErr("invalid URI value")
		}
		r.URI = resolved
	}
	return r, nil
}

type strErr string

func (e strErr) Error() string { return string(e) }
