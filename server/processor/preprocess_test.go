package processor

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestThresholdValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pct  float64
		want float64
	}{
		{30, 76},
		{0, 0},
		{100, 255},
		{50, 128},
		{-5, 0},
		{150, 255},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ThresholdValue(tt.pct), "pct %v", tt.pct)
	}
}

func TestPreprocessBlankFrameIsEmpty(t *testing.T) {
	p := NewPreprocessor(testConfig(t).Preprocess)
	defer p.Close()

	mask, err := p.Process(blankFrame(testWidth, testHeight))
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, testHeight, mask.Rows())
	assert.Equal(t, testWidth, mask.Cols())
	assert.Equal(t, 0, gocv.CountNonZero(mask))
}

func TestPreprocessClearsRowsAboveCutoff(t *testing.T) {
	cfg := testConfig(t).Preprocess
	p := NewPreprocessor(cfg)
	defer p.Close()

	mask, err := p.Process(filledFrame(testWidth, testHeight, 255, 255, 255))
	require.NoError(t, err)
	defer mask.Close()

	sky := mask.Region(image.Rect(0, 0, testWidth, cfg.CutoffRow))
	defer sky.Close()
	assert.Equal(t, 0, gocv.CountNonZero(sky))

	assert.Equal(t, testWidth*(testHeight-cfg.CutoffRow), gocv.CountNonZero(mask))
}

func TestPreprocessRemovesVegetation(t *testing.T) {
	p := NewPreprocessor(testConfig(t).Preprocess)
	defer p.Close()

	// Bright green: above the gray threshold but inside the grass range.
	mask, err := p.Process(filledFrame(testWidth, testHeight, 0, 220, 0))
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 0, gocv.CountNonZero(mask))
}

func TestPreprocessRejectsShortBuffer(t *testing.T) {
	p := NewPreprocessor(testConfig(t).Preprocess)
	defer p.Close()

	frame := blankFrame(testWidth, testHeight)
	frame.Pix = frame.Pix[:len(frame.Pix)-1]

	_, err := p.Process(frame)
	assert.Error(t, err)

	_, err = p.Process(nil)
	assert.Error(t, err)
}

func TestPreprocessIsDeterministic(t *testing.T) {
	p := NewPreprocessor(testConfig(t).Preprocess)
	defer p.Close()

	frame := trackFrame()

	first, err := p.Process(frame)
	require.NoError(t, err)
	defer first.Close()

	second, err := p.Process(frame)
	require.NoError(t, err)
	defer second.Close()

	assert.NotZero(t, gocv.CountNonZero(first))
	assert.Equal(t, first.ToBytes(), second.ToBytes())
}
