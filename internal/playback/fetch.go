package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hls-playback/internal/playlist"
)

// Fetcher is the HTTP primitive the engine drives. Tests supply fakes; the
// daemon uses HTTPFetcher.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error)
}

// HTTPFetcher fetches over net/http with a response-header timeout, mapping
// transport failures and non-2xx statuses to *NetworkError.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns a fetcher with its own transport.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	transport := &http.Transport{
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &HTTPFetcher{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
	}
}

// FetchText fetches url and returns the body as text.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	data, err := f.do(ctx, url, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FetchBytes fetches url, optionally restricted to the given byte range.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error) {
	return f.do(ctx, url, br)
}

func (f *HTTPFetcher) do(ctx context.Context, url string, br *playlist.ByteRange) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if br != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", br.Offset, br.Offset+br.Length-1))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Cancellation must surface as such, not as a network failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	return data, nil
}
