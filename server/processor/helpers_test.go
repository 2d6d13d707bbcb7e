package processor

import (
	"path/filepath"
	"testing"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	testWidth  = 640
	testHeight = 352
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateConfig(nil))
	return cfg
}

func blankFrame(w, h int) *models.Frame {
	return &models.Frame{Width: w, Height: h, Pix: make([]byte, w*h*3)}
}

func filledFrame(w, h int, b, g, r byte) *models.Frame {
	f := blankFrame(w, h)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = b, g, r
	}
	return f
}

// paintStripe draws a white band halfWidth pixels either side of the line
// from (x0,y0) to (x1,y1), one row at a time. y0 must be less than y1.
func paintStripe(f *models.Frame, x0, y0, x1, y1, halfWidth int) {
	for y := y0; y <= y1; y++ {
		cx := x0 + (x1-x0)*(y-y0)/(y1-y0)
		for x := cx - halfWidth; x <= cx+halfWidth; x++ {
			if x < 0 || x >= f.Width {
				continue
			}
			i := (y*f.Width + x) * 3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = 255, 255, 255
		}
	}
}

// trackFrame has one painted edge on each side of the image, below the cutoff.
func trackFrame() *models.Frame {
	f := blankFrame(testWidth, testHeight)
	paintStripe(f, 140, 200, 100, 340, 4)
	paintStripe(f, 500, 200, 540, 340, 4)
	return f
}

// maskFromBytes copies pix into a Mat owned by OpenCV.
func maskFromBytes(t *testing.T, w, h int, pix []byte) gocv.Mat {
	t.Helper()
	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, pix)
	require.NoError(t, err)
	defer view.Close()
	return view.Clone()
}
