package processor

import (
	"context"
	"errors"
	"sync"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
)

var ErrQueueClosed = errors.New("frame queue closed")

// FrameQueue is a small bounded buffer between the camera and the perception
// loop. A full queue drops its oldest frame on Push, and consumers always get
// the newest frame, discarding anything older still waiting.
type FrameQueue struct {
	items     []*models.Frame
	depth     int
	ready     chan struct{}
	done      chan struct{}
	isRunning bool
	pushed    uint64
	dropped   uint64
	mutex     sync.Mutex
	closeOnce sync.Once
}

func NewFrameQueue(depth int) *FrameQueue {
	if depth < 1 {
		depth = 1
	}

	return &FrameQueue{
		items:     make([]*models.Frame, 0, depth),
		depth:     depth,
		ready:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		isRunning: true,
	}
}

// Push never blocks. It reports false once the queue is closed.
func (q *FrameQueue) Push(frame *models.Frame) bool {
	q.mutex.Lock()
	if !q.isRunning {
		q.mutex.Unlock()
		return false
	}

	if len(q.items) == q.depth {
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = nil
		q.items = q.items[:len(q.items)-1]
		q.dropped++
	}
	q.items = append(q.items, frame)
	q.pushed++
	q.mutex.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryGet returns the newest frame without blocking.
func (q *FrameQueue) TryGet() (*models.Frame, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil, false
	}

	frame := q.items[n-1]
	q.dropped += uint64(n - 1)
	clear(q.items)
	q.items = q.items[:0]
	return frame, true
}

// Get blocks until a frame is available, the context ends or the queue is
// closed. Frames still buffered at Close are not delivered.
func (q *FrameQueue) Get(ctx context.Context) (*models.Frame, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrQueueClosed
		default:
		}

		if frame, ok := q.TryGet(); ok {
			return frame, nil
		}

		select {
		case <-q.ready:
		case <-q.done:
			return nil, ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() {
		q.mutex.Lock()
		q.isRunning = false
		q.mutex.Unlock()
		close(q.done)
	})
}

func (q *FrameQueue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *FrameQueue) Capacity() int {
	return q.depth
}

func (q *FrameQueue) IsRunning() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.isRunning
}

func (q *FrameQueue) GetQueueStats() QueueStats {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return QueueStats{
		CurrentSize:        len(q.items),
		MaxCapacity:        q.depth,
		Pushed:             q.pushed,
		Dropped:            q.dropped,
		IsRunning:          q.isRunning,
		UtilizationPercent: float64(len(q.items)) / float64(q.depth) * 100,
	}
}

type QueueStats struct {
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	Pushed             uint64  `json:"pushed"`
	Dropped            uint64  `json:"dropped"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
