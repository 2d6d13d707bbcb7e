package control

import (
	"sync/atomic"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"golang.org/x/time/rate"
)

// State is the lifecycle of one link loop.
type State int32

const (
	StateUnbound State = iota
	StateBound
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

type linkState struct {
	v atomic.Int32
}

func (s *linkState) load() State   { return State(s.v.Load()) }
func (s *linkState) store(v State) { s.v.Store(int32(v)) }

// Mailbox holds the latest control message and when it was published. The
// perception loop publishes and the sender reads; neither blocks the other.
type Mailbox struct {
	latest atomic.Pointer[posted]
	now    func() time.Time
}

type posted struct {
	msg models.ControlMessage
	at  time.Time
}

func NewMailbox() *Mailbox {
	return &Mailbox{now: time.Now}
}

func (m *Mailbox) Publish(msg models.ControlMessage) {
	m.latest.Store(&posted{msg: msg, at: m.now()})
}

// Latest reports false until the first Publish.
func (m *Mailbox) Latest() (models.ControlMessage, time.Time, bool) {
	p := m.latest.Load()
	if p == nil {
		return models.ControlMessage{}, time.Time{}, false
	}
	return p.msg, p.at, true
}

// LinkStats is a point-in-time view of one link loop.
type LinkStats struct {
	State     string `json:"state"`
	Addr      string `json:"addr"`
	Sent      uint64 `json:"sent,omitempty"`
	Failed    uint64 `json:"failed,omitempty"`
	Received  uint64 `json:"received,omitempty"`
	Discarded uint64 `json:"discarded,omitempty"`
	Stale     uint64 `json:"stale,omitempty"`
}

// newLogLimiter throttles repeated warnings from a loop that fails on every tick.
func newLogLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(5*time.Second), 3)
}
