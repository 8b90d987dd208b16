package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowOnlyMovesOnAdvance(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())
}

func TestFakeTickerFiresPerInterval(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(999 * time.Millisecond)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case at := <-ticker.C:
		assert.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFakeStoppedTickerIsSilent(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeSleepReleasesOnAdvance(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Second)
		close(done)
	}()

	c.WaitForWaiters(1)
	c.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sleep was not released")
	}
}

func TestFakeTickerPanicsOnNonPositiveInterval(t *testing.T) {
	require.Panics(t, func() { Fake(epoch).NewTicker(0) })
}
