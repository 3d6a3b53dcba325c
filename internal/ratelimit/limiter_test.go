package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllow_AllowsWithinBurst(t *testing.T) {
	l := New(60, 3)

	assert.True(t, l.Allow("caller-1"))
	assert.True(t, l.Allow("caller-1"))
	assert.True(t, l.Allow("caller-1"))
}

func TestLimiterAllow_BlocksPastBurst(t *testing.T) {
	l := New(60, 2)

	assert.True(t, l.Allow("caller-1"))
	assert.True(t, l.Allow("caller-1"))
	assert.False(t, l.Allow("caller-1"))
}

func TestLimiterAllow_PerCallerIsolation(t *testing.T) {
	l := New(60, 1)

	assert.True(t, l.Allow("caller-1"))
	assert.False(t, l.Allow("caller-1"))
	assert.True(t, l.Allow("caller-2"))
}

func TestLimiterEvictIdle_RemovesStaleBuckets(t *testing.T) {
	l := New(60, 1)
	l.idleAfter = 0

	l.Allow("caller-1")
	l.Allow("caller-2")

	evicted := l.EvictIdle()

	assert.Equal(t, 2, evicted)
	assert.Empty(t, l.buckets)
}

func TestLimiterEvictIdle_KeepsFreshBuckets(t *testing.T) {
	l := New(60, 1)
	l.idleAfter = time.Hour

	l.Allow("caller-1")

	evicted := l.EvictIdle()

	assert.Equal(t, 0, evicted)
	assert.Len(t, l.buckets, 1)
}

func TestLimiterRunEvictionLoop_StopsOnSignal(t *testing.T) {
	l := New(60, 1)
	l.Allow("caller-1")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		l.RunEvictionLoop(time.Millisecond, stop)
		close(done)
	}()

	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEvictionLoop did not return after stop was closed")
	}
}
