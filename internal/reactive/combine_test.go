package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine2(t *testing.T) {
	sched := NewManualScheduler()
	a := NewState[int](sched, 1)
	b := NewState[string](sched, "x")

	type pair struct {
		n int
		s string
	}
	c := Combine2[int, string, pair](a, b, func(n int, s string) pair {
		return pair{n: n, s: s}
	})
	defer c.Close()

	assert.Equal(t, pair{1, "x"}, c.Current())

	var got []pair
	c.Subscribe(func(p pair) { got = append(got, p) })

	a.Patch(func(n *int) { *n = 2 })
	sched.Flush()
	require.Len(t, got, 1)
	assert.Equal(t, pair{2, "x"}, got[0])

	b.Patch(func(s *string) { *s = "y" })
	sched.Flush()
	require.Len(t, got, 2)
	assert.Equal(t, pair{2, "y"}, got[1])
}

func TestCombine2_closeDetachesFromInputs(t *testing.T) {
	sched := NewManualScheduler()
	a := NewState[int](sched, 0)
	b := NewState[int](sched, 0)

	c := Combine2[int, int, int](a, b, func(x, y int) int { return x + y })

	var calls int
	c.Subscribe(func(int) { calls++ })

	a.Patch(func(n *int) { *n = 1 })
	sched.Flush()
	require.Equal(t, 1, calls)

	c.Close()
	c.Close() // idempotent

	a.Patch(func(n *int) { *n = 2 })
	b.Patch(func(n *int) { *n = 3 })
	sched.Flush()
	assert.Equal(t, 1, calls)
}

func TestCombine2_currentAlwaysRecomputes(t *testing.T) {
	sched := NewManualScheduler()
	a := NewState[int](sched, 1)
	b := NewState[int](sched, 10)

	c := Combine2[int, int, int](a, b, func(x, y int) int { return x + y })
	defer c.Close()

	a.Patch(func(n *int) { *n = 5 })
	// No flush needed: Current reads the inputs directly.
	assert.Equal(t, 15, c.Current())
}
