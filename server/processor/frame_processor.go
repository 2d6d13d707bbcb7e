package processor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/control"
	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/stat"
)

const latencyWindow = 256

// FrameProcessor runs the perception loop: mask, segments, centerline,
// smoothing and the control message derived from them. ProcessFrame and Run
// must be called from one goroutine; GetStats is safe from any.
type FrameProcessor struct {
	logger       *zap.Logger
	preprocessor *Preprocessor
	detector     *SegmentDetector
	smoother     *Smoother
	encoder      *control.Encoder
	steering     control.SteeringMapper
	config       config.ControlConfig
	missLimiter  *rate.Limiter

	missStreak int

	stats     *ProcessorStats
	latencies []float64
	next      int
	mutex     sync.RWMutex
}

type ProcessorStats struct {
	StartTime             time.Time           `json:"start_time"`
	TotalProcessed        int64               `json:"total_processed"`
	SuccessfullyProcessed int64               `json:"successfully_processed"`
	NoCenterline          int64               `json:"no_centerline"`
	FailedProcessed       int64               `json:"failed_processed"`
	AverageLatency        float64             `json:"average_latency_ms"`
	P50Latency            float64             `json:"p50_latency_ms"`
	P95Latency            float64             `json:"p95_latency_ms"`
	MissStreak            int                 `json:"miss_streak"`
	FaultActive           bool                `json:"fault_active"`
	LastResult            *models.FrameResult `json:"last_result,omitempty"`
}

func NewFrameProcessor(cfg *config.Config, logger *zap.Logger) *FrameProcessor {
	return &FrameProcessor{
		logger:       logger.Named("processor"),
		preprocessor: NewPreprocessor(cfg.Preprocess),
		detector:     NewSegmentDetector(cfg.Hough),
		smoother:     NewSmoother(cfg.Control.SmoothingAlpha),
		encoder:      control.NewEncoder(cfg.Control),
		steering:     control.NewSteeringMapper(cfg.Control),
		config:       cfg.Control,
		missLimiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		stats:        &ProcessorStats{StartTime: time.Now()},
		latencies:    make([]float64, 0, latencyWindow),
	}
}

// ProcessFrame runs one frame through the pipeline. The error is non-nil only
// for frames that could not be processed at all.
func (fp *FrameProcessor) ProcessFrame(frame *models.Frame) (*models.FrameResult, error) {
	startTime := time.Now()

	mask, err := fp.preprocessor.Process(frame)
	if err != nil {
		fp.mutex.Lock()
		fp.stats.TotalProcessed++
		fp.stats.FailedProcessed++
		fp.mutex.Unlock()
		return nil, err
	}
	defer mask.Close()

	segments := fp.detector.Detect(mask)
	raw := EstimateCenterline(segments, frame.Width)

	if raw == nil {
		fp.missStreak++
	} else {
		fp.missStreak = 0
	}
	fault := fp.missStreak >= fp.config.MaxMissedFrames

	smoothed := fp.smoother.Update(raw)
	msg := fp.encoder.Encode(
		fp.steering.Steering(smoothed, frame.Width),
		fp.config.CruiseThrottle,
		fault,
	)

	result := &models.FrameResult{
		Seq:        frame.Seq,
		Segments:   segments,
		Raw:        raw,
		Smoothed:   smoothed,
		MissStreak: fp.missStreak,
		Fault:      fault,
		Message:    msg,
		Latency:    time.Since(startTime),
	}

	fp.record(result)
	return result, nil
}

// Run consumes frames until ctx ends or the queue closes, publishing every
// control message.
func (fp *FrameProcessor) Run(ctx context.Context, queue *FrameQueue, publish func(models.ControlMessage)) error {
	fp.logger.Info("Perception loop running",
		zap.Float64("alpha", fp.smoother.Alpha()),
		zap.Int("max_missed_frames", fp.config.MaxMissedFrames),
	)

	faultActive := false
	for {
		frame, err := queue.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				fp.logger.Info("Perception loop stopped")
				return nil
			}
			return err
		}

		result, err := fp.ProcessFrame(frame)
		if err != nil {
			fp.logger.Warn("Frame dropped", zap.Uint64("seq", frame.Seq), zap.Error(err))
			continue
		}

		if result.Raw == nil && fp.missLimiter.Allow() {
			fp.logger.Debug("No centerline",
				zap.Uint64("seq", result.Seq),
				zap.Int("segments", len(result.Segments)),
				zap.Int("miss_streak", result.MissStreak),
				zap.Error(faults.ErrNoCenterline),
			)
		}

		if result.Fault != faultActive {
			faultActive = result.Fault
			if faultActive {
				fp.logger.Warn("Centerline lost, emergency stop raised", zap.Int("miss_streak", result.MissStreak))
			} else {
				fp.logger.Info("Centerline reacquired, emergency stop cleared", zap.Uint64("seq", result.Seq))
			}
		}

		publish(result.Message)
	}
}

// Reset restarts the control loop: the smoother forgets its state and the
// miss streak clears.
func (fp *FrameProcessor) Reset() {
	fp.smoother.Reset()
	fp.missStreak = 0

	fp.mutex.Lock()
	fp.stats.MissStreak = 0
	fp.stats.FaultActive = false
	fp.mutex.Unlock()
}

func (fp *FrameProcessor) record(result *models.FrameResult) {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()

	fp.stats.TotalProcessed++
	if result.Raw != nil {
		fp.stats.SuccessfullyProcessed++
	} else {
		fp.stats.NoCenterline++
	}
	fp.stats.MissStreak = result.MissStreak
	fp.stats.FaultActive = result.Fault
	fp.stats.LastResult = result

	fp.updateLatencyStats(result.Latency)
}

func (fp *FrameProcessor) updateLatencyStats(latency time.Duration) {
	currentLatency := float64(latency.Microseconds()) / 1000

	if fp.stats.TotalProcessed <= 1 {
		fp.stats.AverageLatency = currentLatency
	} else {
		alpha := 0.1
		fp.stats.AverageLatency = alpha*currentLatency + (1-alpha)*fp.stats.AverageLatency
	}

	if len(fp.latencies) < latencyWindow {
		fp.latencies = append(fp.latencies, currentLatency)
	} else {
		fp.latencies[fp.next] = currentLatency
		fp.next = (fp.next + 1) % latencyWindow
	}
}

func (fp *FrameProcessor) GetStats() *ProcessorStats {
	fp.mutex.RLock()
	defer fp.mutex.RUnlock()

	stats := *fp.stats
	if len(fp.latencies) > 0 {
		sorted := append([]float64(nil), fp.latencies...)
		sort.Float64s(sorted)
		stats.P50Latency = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		stats.P95Latency = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return &stats
}

// Shutdown releases the OpenCV resources held by the pipeline.
func (fp *FrameProcessor) Shutdown() error {
	fp.logger.Info("Shutting down frame processor...")

	if err := fp.preprocessor.Close(); err != nil {
		fp.logger.Error("Failed to release preprocessor", zap.Error(err))
		return err
	}

	fp.logger.Info("Frame processor shutdown complete")
	return nil
}
