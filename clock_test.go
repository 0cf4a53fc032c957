package ltx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonotonicClockStartsNearZero(t *testing.T) {
	c := NewClock()
	require.Less(t, c.NowNS(), uint64(time.Second))
}

func TestMonotonicClockAdvances(t *testing.T) {
	c := NewClock()
	first := c.NowNS()
	time.Sleep(time.Millisecond)
	second := c.NowNS()
	require.Greater(t, second, first)
}

func TestFakeClockAdvance(t *testing.T) {
	c := NewFakeClock(100)
	require.Equal(t, uint64(100), c.NowNS())

	got := c.Advance(50)
	require.Equal(t, uint64(150), got)
	require.Equal(t, uint64(150), c.NowNS())
}
