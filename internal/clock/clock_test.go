package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Now_FollowsWallClock(t *testing.T) {
	wall := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithSource(func() time.Time { return wall })

	assert.Equal(t, wall, c.Now())

	wall = wall.Add(time.Second)
	assert.Equal(t, wall, c.Now())
}

func TestClock_Now_StrictlyIncreasingWhenWallStalls(t *testing.T) {
	wall := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithSource(func() time.Time { return wall })

	first := c.Now()
	second := c.Now()
	third := c.Now()

	assert.Equal(t, first.Add(Resolution), second)
	assert.Equal(t, second.Add(Resolution), third)
}

func TestClock_Now_WallGoesBackwards(t *testing.T) {
	wall := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithSource(func() time.Time { return wall })

	first := c.Now()

	// Часы системы откатились назад
	wall = wall.Add(-time.Hour)
	second := c.Now()

	assert.True(t, second.After(first), "timestamp must not go backwards")
}

func TestClock_Observe(t *testing.T) {
	wall := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewWithSource(func() time.Time { return wall })

	remote := wall.Add(5 * time.Minute)
	c.Observe(remote)

	next := c.Now()
	assert.True(t, next.After(remote), "Now must be after observed timestamp")
	assert.Equal(t, remote.Add(Resolution), next)

	// Более старая метка ничего не меняет
	c.Observe(wall.Add(-time.Hour))
	assert.Equal(t, next, c.Last())
}

func TestClock_Now_TruncatesToResolution(t *testing.T) {
	wall := time.Date(2026, 3, 1, 10, 0, 0, 1234567, time.UTC)
	c := NewWithSource(func() time.Time { return wall })

	got := c.Now()
	assert.Equal(t, 1234000, got.Nanosecond())
}

func TestClock_Now_Concurrent(t *testing.T) {
	c := New()

	const goroutines = 16
	const perGoroutine = 200

	var mu sync.Mutex
	seen := make(map[time.Time]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ts := c.Now()
				mu.Lock()
				seen[ts] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*perGoroutine, "all timestamps must be unique")
}
