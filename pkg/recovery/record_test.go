package recovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendCountsLifetime(t *testing.T) {
	h := newHistory(10, time.Hour, nil)

	rec, n := h.append(TypeDatabase, "down", "firestore", "save")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, uint64(1), n)

	_, n = h.append(TypeDatabase, "down again", "firestore", "save")
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, uint64(2), h.lifetime(TypeDatabase))
	assert.Equal(t, uint64(0), h.lifetime(TypeTimeout))
}

func TestHistory_SizeCapEvictsOldest(t *testing.T) {
	h := newHistory(5, time.Hour, nil)

	for i := range 8 {
		h.append(TypeUnknown, fmt.Sprintf("err-%d", i), "", "")
	}

	assert.Equal(t, 5, h.size())
	snap := h.snapshot()
	assert.Equal(t, "err-3", snap[0].Message)
	assert.Equal(t, "err-7", snap[4].Message)

	// Lifetime counts survive eviction.
	assert.Equal(t, uint64(8), h.lifetime(TypeUnknown))
}

func TestHistory_EvictExpired(t *testing.T) {
	now := time.Now()
	clock := now
	h := newHistory(100, 24*time.Hour, func() time.Time { return clock })

	h.append(TypeUnknown, "old", "", "")
	clock = now.Add(25 * time.Hour)
	h.append(TypeUnknown, "fresh", "", "")

	evicted := h.evictExpired()
	assert.Equal(t, 1, evicted)
	require.Equal(t, 1, h.size())
	assert.Equal(t, "fresh", h.snapshot()[0].Message)
}

func TestHistory_CountSince(t *testing.T) {
	now := time.Now()
	clock := now
	h := newHistory(100, 24*time.Hour, func() time.Time { return clock })

	h.append(TypeDatabase, "1", "", "")
	clock = now.Add(10 * time.Minute)
	h.append(TypeDatabase, "2", "", "")
	h.append(TypeTimeout, "3", "", "")

	assert.Equal(t, 1, h.countSince(TypeDatabase, now.Add(5*time.Minute)))
	assert.Equal(t, 2, h.countSince(TypeDatabase, now.Add(-time.Minute)))
	assert.Equal(t, 1, h.countSince(TypeTimeout, now.Add(5*time.Minute)))
}

func TestHistory_RecentByType(t *testing.T) {
	now := time.Now()
	h := newHistory(100, 24*time.Hour, func() time.Time { return now })

	h.append(TypeDatabase, "a", "", "")
	h.append(TypeDatabase, "b", "", "")
	h.append(TypeTimeout, "c", "", "")

	recent := h.recentByType(now.Add(-time.Minute))
	assert.Equal(t, 2, recent[TypeDatabase])
	assert.Equal(t, 1, recent[TypeTimeout])
}
