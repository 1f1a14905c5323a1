package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hls-playback/internal/abr"
	"hls-playback/internal/buffer"
	"hls-playback/internal/playlist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mainURL = "https://cdn.test/main.m3u8"

const mainManifest = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=300000,RESOLUTION=640x360,CODECS="avc1.42c01e"
low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1920x1080,CODECS="avc1.640028"
high.m3u8
`

func mediaManifest(prefix string, n int) string {
	s := "#EXTM3U\n#EXT-X-TARGETDURATION:6\n"
	for i := 0; i < n; i++ {
		s += fmt.Sprintf("#EXTINF:6.0,\n%s/s%d.m4s\n", prefix, i)
	}
	return s + "#EXT-X-ENDLIST\n"
}

type fakeFetcher struct {
	mu        sync.Mutex
	texts     map[string]string
	data      map[string][]byte
	textCalls []string
	byteCalls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		texts: make(map[string]string),
		data:  make(map[string][]byte),
	}
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls = append(f.textCalls, url)
	text, ok := f.texts[url]
	if !ok {
		return "", &NetworkError{URL: url, StatusCode: 404}
	}
	return text, nil
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string, _ *playlist.ByteRange) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byteCalls = append(f.byteCalls, url)
	data, ok := f.data[url]
	if !ok {
		return nil, &NetworkError{URL: url, StatusCode: 404}
	}
	return data, nil
}

func (f *fakeFetcher) textCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.textCalls)
}

func (f *fakeFetcher) byteURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.byteCalls...)
}

// serveVOD installs the standard two-variant fixture: a 300 kbps and a
// 3 Mbps rendition, four 6-second segments each, 50 KB per segment.
func (f *fakeFetcher) serveVOD() {
	f.texts[mainURL] = mainManifest
	f.texts["https://cdn.test/low.m3u8"] = mediaManifest("low", 4)
	f.texts["https://cdn.test/high.m3u8"] = mediaManifest("high", 4)
	for i := 0; i < 4; i++ {
		f.data[fmt.Sprintf("https://cdn.test/low/s%d.m4s", i)] = make([]byte, 50_000)
		f.data[fmt.Sprintf("https://cdn.test/high/s%d.m4s", i)] = make([]byte, 50_000)
	}
}

type fakeMedia struct{}

func (fakeMedia) CurrentTime() float64     { return 0 }
func (fakeMedia) Duration() float64        { return 0 }
func (fakeMedia) Buffered() []buffer.Range { return nil }

type fakeSink struct {
	mu     sync.Mutex
	segDur float64
	reject map[MediaKind]bool
	opened bool
	closed bool
	subs   map[MediaKind]*fakeSubSink
}

func newFakeSink(segDur float64) *fakeSink {
	return &fakeSink{segDur: segDur, subs: make(map[MediaKind]*fakeSubSink)}
}

func (s *fakeSink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *fakeSink) AddSubSink(kind MediaKind, codecs string) (SubSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject[kind] {
		return nil, errors.New("codec not supported")
	}
	sub := &fakeSubSink{segDur: s.segDur}
	s.subs[kind] = sub
	return sub, nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) sub(kind MediaKind) *fakeSubSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[kind]
}

// fakeSubSink models a source buffer whose coverage grows by one segment
// duration per append, starting at zero.
type fakeSubSink struct {
	mu      sync.Mutex
	segDur  float64
	appends int
	removes int
}

func (b *fakeSubSink) Append(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appends++
	return nil
}

func (b *fakeSubSink) Remove(ctx context.Context, start, end float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removes++
	return nil
}

func (b *fakeSubSink) Buffered() []buffer.Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appends == 0 {
		return nil
	}
	return []buffer.Range{{Start: 0, End: float64(b.appends) * b.segDur}}
}

func (b *fakeSubSink) appendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appends
}

func testConfig() Config {
	return Config{
		ForwardBufferTarget: 12,
		BackBuffer:          buffer.BackBufferPolicy{KeepBehind: -1},
	}
}

func resolvedTracks(s State, kind MediaKind) int {
	n := 0
	for _, t := range s.Presentation.TracksOfKind(kind) {
		if t.Status == StatusResolved {
			n++
		}
	}
	return n
}

func TestEngine_autoPreloadBuffersToTarget(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()
	sink := newFakeSink(6.0)

	eng := New(testConfig(),
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadAuto))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	require.Eventually(t, func() bool {
		s := eng.State().Current()
		return s.Presentation != nil && s.Presentation.Status == StatusResolved
	}, 2*time.Second, 5*time.Millisecond)

	// The default bandwidth seed (1 Mbps, 0.8 safety) fits only the
	// 300 kbps rendition.
	require.Eventually(t, func() bool {
		return eng.State().Current().SelectedVideoTrackID == "video-0"
	}, 2*time.Second, 5*time.Millisecond)

	// Forward target of 12 seconds means exactly two 6-second segments.
	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t,
		[]string{"https://cdn.test/low/s0.m4s", "https://cdn.test/low/s1.m4s"},
		f.byteURLs())

	// Only the selected rendition's playlist was fetched.
	s := eng.State().Current()
	assert.Equal(t, 1, resolvedTracks(s, KindVideo))
	assert.Equal(t, 2, f.textCount())

	// VOD duration propagates from the resolved playlist.
	assert.InDelta(t, 24.0, s.Presentation.Duration, 1e-9)
}

func TestEngine_preloadNoneWaitsForPlay(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()
	sink := newFakeSink(6.0)

	eng := New(testConfig(),
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadNone))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.textCount(), "nothing may be fetched before play")

	require.NoError(t, eng.Play())

	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_preloadMetadataDefersSegmentBytes(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()
	sink := newFakeSink(6.0)

	eng := New(testConfig(),
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadMetadata))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	// Playlists resolve eagerly.
	require.Eventually(t, func() bool { return f.textCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.byteURLs(), "no media bytes before play")

	require.NoError(t, eng.Play())

	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_badManifestSurfacesOnErrorStream(t *testing.T) {
	f := newFakeFetcher() // serves nothing: every fetch is a 404

	eng := New(testConfig(), WithFetcher(f))
	defer eng.Destroy()

	got := make(chan error, 1)
	eng.Errors().Subscribe(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	require.NoError(t, eng.Load(mainURL, PreloadAuto))

	select {
	case err := <-got:
		var nerr *NetworkError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, 404, nerr.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch failure never surfaced")
	}

	require.Eventually(t, func() bool {
		p := eng.State().Current().Presentation
		return p != nil && p.Status == StatusErrored && p.Err != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_sinkRejectionIsNotFatal(t *testing.T) {
	f := newFakeFetcher()
	f.texts[mainURL] = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en",DEFAULT=YES,URI="audio.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=300000,CODECS="avc1.42c01e",AUDIO="aud"
low.m3u8
`
	f.texts["https://cdn.test/low.m3u8"] = mediaManifest("low", 4)
	f.texts["https://cdn.test/audio.m3u8"] = mediaManifest("audio", 4)
	for i := 0; i < 4; i++ {
		f.data[fmt.Sprintf("https://cdn.test/low/s%d.m4s", i)] = make([]byte, 50_000)
		f.data[fmt.Sprintf("https://cdn.test/audio/s%d.m4s", i)] = make([]byte, 50_000)
	}

	sink := newFakeSink(6.0)
	sink.reject = map[MediaKind]bool{KindAudio: true}

	eng := New(testConfig(),
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)
	defer eng.Destroy()

	got := make(chan error, 4)
	eng.Errors().Subscribe(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	require.NoError(t, eng.Load(mainURL, PreloadAuto))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	// Video proceeds despite the rejected audio kind.
	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, sink.sub(KindAudio))

	select {
	case err := <-got:
		var merr *UnsupportedMediaError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, KindAudio, merr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("rejection never surfaced")
	}
}

func TestEngine_backBufferEviction(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()
	sink := newFakeSink(6.0)

	cfg := testConfig()
	cfg.BackBuffer = buffer.BackBufferPolicy{KeepBehind: 5}

	eng := New(cfg,
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadAuto))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Move the playhead forward; the loader appends the next segment and
	// flushes media behind position-5.
	eng.Events().Dispatch(Event{Type: EventTimeUpdate, Position: 10})

	sub := sink.sub(KindVideo)
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.appends >= 3 && sub.removes >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_failedSwitchTargetFallsBack(t *testing.T) {
	f := newFakeFetcher()
	f.texts[mainURL] = mainManifest
	f.texts["https://cdn.test/low.m3u8"] = mediaManifest("low", 4)
	// high.m3u8 is deliberately absent: resolving the switch target 404s.

	eng := New(testConfig(), WithFetcher(f))
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadAuto))

	// The 1 Mbps seed picks the 300 kbps rendition first.
	require.Eventually(t, func() bool {
		s := eng.State().Current()
		if s.SelectedVideoTrackID != "video-0" || s.Presentation == nil {
			return false
		}
		tr := s.Presentation.FindTrack("video-0")
		return tr != nil && tr.Status == StatusResolved
	}, 2*time.Second, 5*time.Millisecond)

	// Feed the estimator 8 Mbps throughput samples. The first one already
	// crosses the trust threshold, so adaptation switches to the 3 Mbps
	// rendition, whose playlist fetch fails.
	for i := 0; i < 20; i++ {
		eng.bw.Patch(func(s *abr.State) { *s = abr.Sample(*s, time.Second, 1_000_000) })
	}

	require.Eventually(t, func() bool {
		tr := eng.State().Current().Presentation.FindTrack("video-1")
		return tr != nil && tr.Status == StatusErrored
	}, 2*time.Second, 5*time.Millisecond)

	// Selection falls back to the still-resolved sibling and the errored
	// rendition stays excluded from later adaptation rounds.
	require.Eventually(t, func() bool {
		return eng.State().Current().SelectedVideoTrackID == "video-0"
	}, 2*time.Second, 5*time.Millisecond)

	s := eng.State().Current()
	low := s.Presentation.FindTrack("video-0")
	require.NotNil(t, low)
	assert.Equal(t, StatusResolved, low.Status)
	assert.NotNil(t, low.Playlist)

	var nerr *NetworkError
	require.ErrorAs(t, s.Presentation.FindTrack("video-1").Err, &nerr)
	assert.Equal(t, 404, nerr.StatusCode)
}

func TestEngine_loadResetsSelections(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()

	eng := New(testConfig(), WithFetcher(f))
	defer eng.Destroy()

	require.NoError(t, eng.Load(mainURL, PreloadAuto))
	require.Eventually(t, func() bool {
		return eng.State().Current().SelectedVideoTrackID != ""
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, eng.Load(mainURL, PreloadNone))
	s := eng.State().Current()
	assert.Equal(t, StatusUnresolved, s.Presentation.Status)
	assert.Empty(t, s.SelectedVideoTrackID)
	assert.False(t, s.PlayRequested)
}

func TestEngine_destroy(t *testing.T) {
	f := newFakeFetcher()
	f.serveVOD()
	sink := newFakeSink(6.0)

	eng := New(testConfig(),
		WithFetcher(f),
		WithSinkFactory(func() MediaSink { return sink }),
	)

	require.NoError(t, eng.Load(mainURL, PreloadAuto))
	require.NoError(t, eng.AttachMedia(fakeMedia{}))

	require.Eventually(t, func() bool {
		sub := sink.sub(KindVideo)
		return sub != nil && sub.appendCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	eng.Destroy()
	eng.Destroy() // idempotent

	assert.ErrorIs(t, eng.Load(mainURL, PreloadAuto), ErrDestroyed)
	assert.ErrorIs(t, eng.Play(), ErrDestroyed)
	assert.ErrorIs(t, eng.AttachMedia(fakeMedia{}), ErrDestroyed)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.closed)
}
