package cache

import (
	"testing"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, size int, ttl time.Duration) (*PeerCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	c := NewPeerCache(size, ttl, zap.NewNop())
	c.now = clock.now
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func report(from string, rpm float64) models.Report {
	return models.Report{From: from, Telemetry: &models.Telemetry{RPM: rpm}}
}

func TestRecordKeepsLatestPerPeer(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 4, time.Minute)
	c.Record(report("10.0.0.1:8888", 100))
	c.Record(report("10.0.0.1:8888", 200))

	entry, err := c.Get("10.0.0.1:8888")
	require.NoError(t, err)
	assert.Equal(t, 200.0, entry.Report.Telemetry.RPM)
	assert.Equal(t, int64(2), entry.Count)

	_, err = c.Get("10.0.0.2:8888")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestEntriesExpire(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 4, 30*time.Second)
	c.Record(report("a", 1))

	clock.advance(31 * time.Second)

	assert.Equal(t, 1, c.GetStats().Expired)
	assert.Empty(t, c.Snapshot())
	_, err := c.Get("a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.GetStats().Items)
}

func TestLeastRecentlyUsedPeerEvicted(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 2, time.Minute)
	c.Record(report("a", 1))
	clock.advance(time.Second)
	c.Record(report("b", 2))
	clock.advance(time.Second)

	_, err := c.Get("a")
	require.NoError(t, err)
	clock.advance(time.Second)

	c.Record(report("c", 3))

	_, err = c.Get("b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Peer)
	assert.Equal(t, "c", snapshot[1].Peer)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestRemoveExpired(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, 4, 10*time.Second)
	c.Record(report("a", 1))
	clock.advance(5 * time.Second)
	c.Record(report("b", 2))
	clock.advance(6 * time.Second)

	assert.Equal(t, 1, c.removeExpired())
	assert.Equal(t, 1, c.GetStats().Items)
}
