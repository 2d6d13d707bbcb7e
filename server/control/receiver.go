package control

import (
	"context"
	"errors"
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

// ReportHandler is called on the receiver goroutine for every decoded datagram.
type ReportHandler func(models.Report)

// Receiver listens for telemetry and control echoes from the actuator board.
type Receiver struct {
	local      string
	timeout    time.Duration
	bufferSize int
	handler    ReportHandler
	logger     *zap.Logger
	limiter    *rate.Limiter

	conn      *net.UDPConn
	addr      atomic.Pointer[string]
	state     linkState
	received  atomic.Uint64
	discarded atomic.Uint64
	closeOnce sync.Once
}

func NewReceiver(cfg config.LinkConfig, handler ReportHandler, logger *zap.Logger) *Receiver {
	return &Receiver{
		local:      net.JoinHostPort(cfg.LocalAddr, strconv.Itoa(cfg.LocalPort)),
		timeout:    cfg.ReceiveTimeout,
		bufferSize: cfg.ReadBufferSize,
		handler:    handler,
		logger:     logger.Named("receiver"),
		limiter:    newLogLimiter(),
	}
}

// Bind opens the listening socket. Failures are configuration faults.
func (r *Receiver) Bind() error {
	laddr, err := net.ResolveUDPAddr("udp", r.local)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "resolve local address", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "bind", err)
	}

	r.conn = conn
	bound := conn.LocalAddr().String()
	r.addr.Store(&bound)
	r.state.store(StateBound)
	return nil
}

// Run binds if needed and reads until ctx ends or the socket is closed. Every
// read carries a deadline so cancellation is seen within one timeout.
func (r *Receiver) Run(ctx context.Context) error {
	if r.conn == nil {
		if err := r.Bind(); err != nil {
			r.state.store(StateClosed)
			return err
		}
	}
	defer r.Close()

	r.state.store(StateRunning)
	r.logger.Info("Telemetry receiver running", zap.String("addr", r.LocalAddr()))

	buf := make([]byte, r.bufferSize)
	for {
		if ctx.Err() != nil {
			r.logger.Info("Telemetry receiver stopped",
				zap.Uint64("received", r.received.Load()),
				zap.Uint64("discarded", r.discarded.Load()),
			)
			return nil
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if r.limiter.Allow() {
				r.logger.Warn("Receive failed", zap.Error(err))
			}
			continue
		}

		report, err := ParseReport(buf[:n], from.String(), time.Now())
		if err != nil {
			r.discarded.Add(1)
			if r.limiter.Allow() {
				r.logger.Warn("Discarding datagram",
					zap.String("from", from.String()),
					zap.String("text", report.Text),
					zap.Error(err),
				)
			}
			continue
		}

		r.received.Add(1)
		r.logger.Debug("Report received", zap.String("from", report.From), zap.String("text", report.Text))
		if r.handler != nil {
			r.handler(report)
		}
	}
}

func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.conn != nil {
			err = r.conn.Close()
		}
		r.state.store(StateClosed)
	})
	return err
}

// LocalAddr is the bound address, or the configured one before Bind.
func (r *Receiver) LocalAddr() string {
	if addr := r.addr.Load(); addr != nil {
		return *addr
	}
	return r.local
}

func (r *Receiver) State() State {
	return r.state.load()
}

func (r *Receiver) Stats() LinkStats {
	return LinkStats{
		State:     r.state.load().String(),
		Addr:      r.LocalAddr(),
		Received:  r.received.Load(),
		Discarded: r.discarded.Load(),
	}
}
