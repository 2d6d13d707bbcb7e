package processor

import (
	"context"
	"testing"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameSeq(seq uint64) *models.Frame {
	return &models.Frame{Seq: seq}
}

func TestFrameQueueFullReturnsNewest(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	for seq := uint64(1); seq <= 5; seq++ {
		require.True(t, q.Push(frameSeq(seq)))
	}
	assert.Equal(t, 4, q.Size())

	frame, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, uint64(5), frame.Seq)

	stats := q.GetQueueStats()
	assert.Equal(t, uint64(5), stats.Pushed)
	assert.Equal(t, uint64(4), stats.Dropped, "one overflow plus three stale frames")
	assert.Equal(t, 0, stats.CurrentSize)
}

func TestFrameQueueTryGetEmpty(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	frame, ok := q.TryGet()
	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestFrameQueueGetWaitsForPush(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(frameSeq(7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), frame.Seq)
}

func TestFrameQueueGetHonoursContext(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameQueueCloseWakesConsumer(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Close")
	}

	assert.False(t, q.Push(frameSeq(1)))
	assert.False(t, q.IsRunning())
}
