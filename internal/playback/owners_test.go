package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwners_notifiesSynchronously(t *testing.T) {
	o := NewOwners()

	var notified []OwnersView
	o.Subscribe(func(v OwnersView) { notified = append(notified, v) })

	o.Patch(func(v *OwnersView) { v.MediaElement = fakeMedia{} })

	// Unlike the reactive document there is no scheduler turn to wait for.
	require.Len(t, notified, 1)
	assert.NotNil(t, notified[0].MediaElement)
}

func TestOwners_snapshotsAreIsolated(t *testing.T) {
	o := NewOwners()
	o.Patch(func(v *OwnersView) {
		v.SubSinks = map[MediaKind]SubSink{KindVideo: &fakeSubSink{}}
	})

	snap := o.Current()
	snap.SubSinks[KindAudio] = &fakeSubSink{}

	assert.Len(t, o.Current().SubSinks, 1, "mutating a snapshot must not leak into the registry")
}

func TestOwners_unsubscribe(t *testing.T) {
	o := NewOwners()

	var calls int
	unsub := o.Subscribe(func(OwnersView) { calls++ })

	o.Patch(func(v *OwnersView) { v.MediaElement = fakeMedia{} })
	unsub()
	o.Patch(func(v *OwnersView) { v.MediaElement = nil })

	assert.Equal(t, 1, calls)
}
