package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAcquireRelease(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	tok, err := c.Acquire(ctx, "resv:1:a", 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "resv:1:a", tok.Key)

	require.NoError(t, c.Release(ctx, tok))

	// Key is free again immediately after release.
	tok2, err := c.Acquire(ctx, "resv:1:a", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, tok2))
}

func TestMemoryContendedAcquireTimesOut(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	tok, err := c.Acquire(ctx, "resv:1:hot", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer c.Release(ctx, tok)

	start := time.Now()
	_, err = c.Acquire(ctx, "resv:1:hot", 30*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMemoryDifferentKeysDoNotContend(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	a, err := c.Acquire(ctx, "resv:1:x", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer c.Release(ctx, a)

	b, err := c.Acquire(ctx, "resv:2:x", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer c.Release(ctx, b)
}

func TestMemoryLeaseExpiryAllowsTakeover(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	stale, err := c.Acquire(ctx, "resv:1:lease", 10*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)

	// After the lease runs out the key can be taken without a release.
	tok, err := c.Acquire(ctx, "resv:1:lease", 200*time.Millisecond, time.Minute)
	require.NoError(t, err)

	// The stale token's release must not free the new holder's lock.
	require.NoError(t, c.Release(ctx, stale))
	_, err = c.Acquire(ctx, "resv:1:lease", 10*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	require.NoError(t, c.Release(ctx, tok))
}

func TestMemoryReleaseIsIdempotent(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	tok, err := c.Acquire(ctx, "resv:1:idem", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Release(ctx, tok))
	require.NoError(t, c.Release(ctx, tok))
	require.NoError(t, c.Release(ctx, nil))
}

func TestMemoryAcquireHonorsContextCancel(t *testing.T) {
	c := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	tok, err := c.Acquire(ctx, "resv:1:ctx", 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer c.Release(context.Background(), tok)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = c.Acquire(ctx, "resv:1:ctx", time.Minute, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryMutualExclusion(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	var (
		inside  int
		maxSeen int
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.Acquire(ctx, "resv:1:mutex", 5*time.Second, time.Minute)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			_ = c.Release(ctx, tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen, "critical section was entered concurrently")
}
