// Package camera feeds frames from an OpenCV capture device into the
// perception queue.
package camera

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const readRetryDelay = 10 * time.Millisecond

// FrameSink accepts frames without blocking.
type FrameSink interface {
	Push(frame *models.Frame) bool
}

// capture is the part of gocv.VideoCapture the stream loop uses.
type capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

type Device struct {
	cfg        config.CameraConfig
	logger     *zap.Logger
	capture    capture
	retryDelay time.Duration
	seq        uint64

	closeOnce sync.Once
	closeErr  error
}

// Open starts the capture named by cfg.Source: a device index such as "0",
// or a file or stream URL.
func Open(cfg config.CameraConfig, logger *zap.Logger) (*Device, error) {
	var source interface{} = cfg.Source
	if index, err := strconv.Atoi(cfg.Source); err == nil {
		source = index
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, faults.New(faults.SensorUnavailable, "open camera", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, faults.Errorf(faults.SensorUnavailable, "open camera", "source %q did not open", cfg.Source)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	d := newDevice(cfg, vc, logger)
	d.logger.Info("Camera opened",
		zap.String("source", cfg.Source),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
	)
	return d, nil
}

func newDevice(cfg config.CameraConfig, src capture, logger *zap.Logger) *Device {
	return &Device{
		cfg:        cfg,
		logger:     logger.Named("camera"),
		capture:    src,
		retryDelay: readRetryDelay,
	}
}

// Stream reads frames into sink until ctx ends. After MaxFailures reads in a
// row come back empty it gives up with SensorUnavailable. The device is closed
// on return.
func (d *Device) Stream(ctx context.Context, sink FrameSink) error {
	defer d.Close()

	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	failures := 0
	for ctx.Err() == nil {
		if ok := d.capture.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= d.cfg.MaxFailures {
				return faults.Errorf(faults.SensorUnavailable, "read camera", "%d consecutive empty reads", failures)
			}
			select {
			case <-ctx.Done():
			case <-time.After(d.retryDelay):
			}
			continue
		}
		failures = 0

		frame, err := d.toFrame(img, &resized)
		if err != nil {
			d.logger.Warn("Skipping frame", zap.Error(err))
			continue
		}

		if !sink.Push(frame) {
			return nil
		}
	}

	d.logger.Info("Camera stream stopped", zap.Uint64("frames", d.seq))
	return nil
}

func (d *Device) toFrame(img gocv.Mat, resized *gocv.Mat) (*models.Frame, error) {
	if img.Channels() != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", img.Channels())
	}

	src := img
	if img.Cols() != d.cfg.Width || img.Rows() != d.cfg.Height {
		gocv.Resize(img, resized, image.Pt(d.cfg.Width, d.cfg.Height), 0, 0, gocv.InterpolationLinear)
		src = *resized
	}

	d.seq++
	return &models.Frame{
		Seq:        d.seq,
		Width:      src.Cols(),
		Height:     src.Rows(),
		Pix:        src.ToBytes(),
		CapturedAt: time.Now(),
	}, nil
}

// Close releases the capture handle. It may be called more than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.capture.Close()
	})
	return d.closeErr
}
