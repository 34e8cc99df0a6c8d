package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	s1 := NewSessionID()
	s2 := NewSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32)
}

func TestSessionRegistryGetCreatesOnce(t *testing.T) {
	r := NewSessionRegistry(time.Hour, nil)

	a := r.Get("s1")
	b := r.Get("s1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())

	_, ok := r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len(), "lookup must not create sessions")
}

func TestSessionsAreIsolated(t *testing.T) {
	r := NewSessionRegistry(time.Hour, nil)
	r.Get("a").Do(func(s *State) {
		s.Append("q", "a")
		s.SetContinuationToken("tok-a")
	})

	r.Get("b").Do(func(s *State) {
		assert.Zero(t, s.Len())
		assert.False(t, s.HasContinuationToken())
	})
}

func TestSessionDoSerializesWriters(t *testing.T) {
	r := NewSessionRegistry(time.Hour, nil)
	sess := r.Get("s")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Do(func(s *State) { s.Append("q", "a") })
		}()
	}
	wg.Wait()

	sess.Do(func(s *State) { assert.Equal(t, 50, s.Len()) })
}

func TestSessionRegistrySweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewSessionRegistry(time.Hour, nil)
	r.now = func() time.Time { return now }

	r.Get("old")
	now = now.Add(45 * time.Minute)
	r.Get("fresh")
	now = now.Add(30 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	_, ok := r.Lookup("old")
	assert.False(t, ok)
	_, ok = r.Lookup("fresh")
	assert.True(t, ok)
}

func TestSessionRegistryNoTTLKeepsSessions(t *testing.T) {
	r := NewSessionRegistry(0, nil)
	r.Get("s")
	assert.Zero(t, r.Sweep())
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistryRunStopsOnCancel(t *testing.T) {
	r := NewSessionRegistry(time.Millisecond, nil)
	r.Get("s")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
