package playback

import (
	"context"
	"errors"
	"fmt"
)

// ErrDestroyed is returned by engine operations attempted after Destroy.
var ErrDestroyed = errors.New("playback engine destroyed")

// NetworkError reports a failed fetch or a non-success HTTP status.
type NetworkError struct {
	URL        string
	StatusCode int // 0 when the request itself failed
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UnsupportedMediaError reports a media kind or codec the sink refused.
type UnsupportedMediaError struct {
	Kind   MediaKind
	Codecs string
	Err    error
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("sink rejected %s (codecs %q): %v", e.Kind, e.Codecs, e.Err)
}

func (e *UnsupportedMediaError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is the expected result of a superseded or
// torn-down operation rather than a real failure. Cancelled errors are never
// surfaced on the engine's error stream.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
