package processor

import (
	"fmt"
	"image"
	"math"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"gocv.io/x/gocv"
)

// Preprocessor turns a color frame into a binary mask of bright track markings
// with grass and everything above the horizon cutoff removed.
type Preprocessor struct {
	cfg    config.PreprocessConfig
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat
}

func NewPreprocessor(cfg config.PreprocessConfig) *Preprocessor {
	size := cfg.KernelSize
	if size < 1 {
		size = 5
	}

	return &Preprocessor{
		cfg:    cfg,
		lower:  gocv.NewScalar(cfg.VegetationLower[0], cfg.VegetationLower[1], cfg.VegetationLower[2], 0),
		upper:  gocv.NewScalar(cfg.VegetationUpper[0], cfg.VegetationUpper[1], cfg.VegetationUpper[2], 0),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size)),
	}
}

// ThresholdValue maps a white level percentage onto the 0..255 gray scale.
// Halves round to even, so 30% gives 76.
func ThresholdValue(whitePct float64) float64 {
	pct := math.Min(math.Max(whitePct, 0), 100)
	return math.RoundToEven(pct / 100 * 255)
}

// Process returns a single-channel mask the caller must Close. The mask is
// only valid when err is nil.
func (p *Preprocessor) Process(frame *models.Frame) (gocv.Mat, error) {
	if err := checkFrame(frame); err != nil {
		return gocv.Mat{}, err
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap frame %d: %w", frame.Seq, err)
	}
	defer src.Close()

	hls := gocv.NewMat()
	defer hls.Close()
	gocv.CvtColor(src, &hls, gocv.ColorBGRToHLS)

	vegetation := gocv.NewMat()
	defer vegetation.Close()
	gocv.InRangeWithScalar(hls, p.lower, p.upper, &vegetation)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	white := gocv.NewMat()
	defer white.Close()
	gocv.Threshold(gray, &white, float32(ThresholdValue(p.cfg.WhitePct)), 255, gocv.ThresholdBinary)

	notVegetation := gocv.NewMat()
	defer notVegetation.Close()
	gocv.BitwiseNot(vegetation, &notVegetation)

	track := gocv.NewMat()
	defer track.Close()
	gocv.BitwiseAnd(white, notVegetation, &track)

	if cutoff := min(p.cfg.CutoffRow, frame.Height); cutoff > 0 {
		sky := track.Region(image.Rect(0, 0, frame.Width, cutoff))
		sky.SetTo(gocv.NewScalar(0, 0, 0, 0))
		sky.Close()
	}

	mask := gocv.NewMat()
	gocv.MorphologyEx(track, &mask, gocv.MorphOpen, p.kernel)

	return mask, nil
}

func (p *Preprocessor) Close() error {
	return p.kernel.Close()
}

func checkFrame(frame *models.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("frame %d has invalid size %dx%d", frame.Seq, frame.Width, frame.Height)
	}
	if want := frame.Width * frame.Height * 3; len(frame.Pix) != want {
		return fmt.Errorf("frame %d buffer is %d bytes, want %d", frame.Seq, len(frame.Pix), want)
	}
	return nil
}
