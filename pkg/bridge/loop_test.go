package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainLoopOrder(t *testing.T) {
	loop := NewMainLoop()

	var got []int
	for i := range 100 {
		require.True(t, loop.Post(func() {
			got = append(got, i)
		}))
	}
	loop.Stop()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMainLoopPostFromLoop(t *testing.T) {
	loop := NewMainLoop()
	done := make(chan []string, 1)

	var got []string
	loop.Post(func() {
		got = append(got, "outer")
		loop.Post(func() {
			got = append(got, "inner")
			done <- got
		})
		got = append(got, "outer done")
	})

	assert.Equal(t, []string{"outer", "outer done", "inner"}, <-done)
	loop.Stop()
}

func TestMainLoopStopped(t *testing.T) {
	loop := NewMainLoop()
	loop.Stop()
	loop.Stop()

	assert.False(t, loop.Post(func() {
		t.Error("ran after stop")
	}))
}
