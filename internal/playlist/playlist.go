// Package playlist parses HLS multivariant and media playlists into
// structured models. Parsing is pure: the same text and base URL always
// produce the same result, and malformed input yields a *ParseError rather
// than a partial playlist.
package playlist

import "fmt"

// ByteRange addresses a sub-range of a resource, as carried by
// EXT-X-BYTERANGE and the BYTERANGE attribute of EXT-X-MAP.
type ByteRange struct {
	Length int64
	Offset int64
}

// InitSegment is the shared initialization segment of a media playlist
// (EXT-X-MAP).
type InitSegment struct {
	URI       string
	ByteRange *ByteRange
}

// Segment is one entry of a media playlist.
type Segment struct {
	URI       string
	Duration  float64 // seconds
	Sequence  int64
	ByteRange *ByteRange
}

// MediaPlaylist is the parsed form of a single rendition's playlist.
type MediaPlaylist struct {
	Version        int
	TargetDuration float64
	MediaSequence  int64
	PlaylistType   string // "VOD", "EVENT", or ""
	Init           *InitSegment
	Segments       []Segment
	// Live is true when the playlist carries no EXT-X-ENDLIST marker.
	Live bool
}

// Duration returns the summed duration of all segments in seconds.
func (p *MediaPlaylist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// Variant is one EXT-X-STREAM-INF entry of a multivariant playlist.
type Variant struct {
	URI              string
	Bandwidth        int64
	AverageBandwidth int64
	Codecs           string
	Width            int
	Height           int
	FrameRate        float64
	// Audio and Subtitles name the alternate-rendition groups associated
	// with this variant.
	Audio     string
	Subtitles string
}

// AlternateRendition is one EXT-X-MEDIA entry: an alternate audio, subtitle
// or closed-caption rendition grouped by GroupID.
type AlternateRendition struct {
	Type       string // "AUDIO", "SUBTITLES", "CLOSED-CAPTIONS"
	GroupID    string
	Name       string
	Language   string
	URI        string
	Default    bool
	AutoSelect bool
	Channels   string
}

// MultivariantPlaylist is the parsed form of a root manifest.
type MultivariantPlaylist struct {
	Version             int
	IndependentSegments bool
	Variants            []Variant
	Renditions          []AlternateRendition
}

// ParseError reports malformed playlist text. Line is 1-based; Tag names
// the tag being parsed when the problem was found, if any.
type ParseError struct {
	Line   int
	Tag    string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("playlist: line %d: %s: %s", e.Line, e.Tag, e.Reason)
	}
	return fmt.Sprintf("playlist: line %d: %s", e.Line, e.Reason)
}
