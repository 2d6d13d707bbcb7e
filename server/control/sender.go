package control

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender transmits the mailbox's latest message to the actuator board once
// per period. A message older than staleAfter is replaced by SafeStop so a
// stalled perception loop cannot keep the vehicle moving.
type Sender struct {
	peer       string
	period     time.Duration
	staleAfter time.Duration
	mailbox    *Mailbox
	logger     *zap.Logger
	limiter    *rate.Limiter

	conn      *net.UDPConn
	state     linkState
	sent      atomic.Uint64
	failed    atomic.Uint64
	staleSent atomic.Uint64
	stale     bool
	closeOnce sync.Once
}

func NewSender(cfg config.LinkConfig, mailbox *Mailbox, logger *zap.Logger) *Sender {
	return &Sender{
		peer:    net.JoinHostPort(cfg.PeerAddr, strconv.Itoa(cfg.PeerPort)),
		period:     cfg.SendPeriod,
		staleAfter: cfg.StaleAfter,
		mailbox:    mailbox,
		logger:     logger.Named("sender"),
		limiter:    newLogLimiter(),
	}
}

// Open resolves and connects the socket. Failures are configuration faults.
func (s *Sender) Open() error {
	raddr, err := net.ResolveUDPAddr("udp", s.peer)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "resolve peer", err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "dial peer", err)
	}

	s.conn = conn
	s.state.store(StateBound)
	return nil
}

// Run opens the socket if needed and sends until ctx ends. Transmit failures
// are counted and logged; only setup failures are returned.
func (s *Sender) Run(ctx context.Context) error {
	if s.conn == nil {
		if err := s.Open(); err != nil {
			s.state.store(StateClosed)
			return err
		}
	}
	defer s.Close()

	s.state.store(StateRunning)
	s.logger.Info("Control sender running",
		zap.String("peer", s.peer),
		zap.Duration("period", s.period),
		zap.Duration("stale_after", s.staleAfter),
	)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mailbox.Publish(SafeStop)
			_ = s.send()
			s.logger.Info("Control sender stopped",
				zap.Uint64("sent", s.sent.Load()),
				zap.Uint64("failed", s.failed.Load()),
			)
			return nil
		case <-ticker.C:
			_ = s.send()
		}
	}
}

func (s *Sender) send() error {
	msg := s.current()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.period))
	if _, err := s.conn.Write(MarshalControl(msg)); err != nil {
		failed := s.failed.Add(1)
		ferr := faults.New(faults.TransmitFailure, "send control", err)
		if s.limiter.Allow() {
			s.logger.Warn("Control datagram not sent", zap.Error(ferr), zap.Uint64("failed", failed))
		}
		return ferr
	}

	s.sent.Add(1)
	return nil
}

// current picks the message for this tick. Only the Run goroutine calls it.
func (s *Sender) current() models.ControlMessage {
	msg, at, ok := s.mailbox.Latest()
	if !ok {
		return SafeStop
	}

	age := s.mailbox.now().Sub(at)
	if s.staleAfter > 0 && age > s.staleAfter {
		if !s.stale {
			s.stale = true
			s.logger.Warn("No fresh control message, sending safe stop",
				zap.Duration("age", age),
				zap.Duration("stale_after", s.staleAfter),
			)
		}
		s.staleSent.Add(1)
		return SafeStop
	}

	if s.stale {
		s.stale = false
		s.logger.Info("Control messages fresh again", zap.Duration("age", age))
	}
	return msg
}

func (s *Sender) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.state.store(StateClosed)
	})
	return err
}

func (s *Sender) State() State {
	return s.state.load()
}

func (s *Sender) Stats() LinkStats {
	return LinkStats{
		State:  s.state.load().String(),
		Addr:   s.peer,
		Sent:   s.sent.Load(),
		Failed: s.failed.Load(),
		Stale:  s.staleSent.Load(),
	}
}
