package processor

import (
	"math"
	"testing"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEmptyMaskYieldsNothing(t *testing.T) {
	d := NewSegmentDetector(testConfig(t).Hough)

	mask := maskFromBytes(t, testWidth, testHeight, make([]byte, testWidth*testHeight))
	defer mask.Close()

	assert.Empty(t, d.Detect(mask))
}

func TestDetectFindsPaintedEdges(t *testing.T) {
	cfg := testConfig(t)
	p := NewPreprocessor(cfg.Preprocess)
	defer p.Close()
	d := NewSegmentDetector(cfg.Hough)

	mask, err := p.Process(trackFrame())
	require.NoError(t, err)
	defer mask.Close()

	segments := d.Detect(mask)
	require.NotEmpty(t, segments)
	for _, seg := range segments {
		assert.GreaterOrEqual(t, seg.Length, float64(cfg.Hough.MinLength))
		assert.Equal(t, models.SideUnclassified, seg.Side)
	}
}

func TestFilterSegments(t *testing.T) {
	t.Parallel()

	cfg := config.HoughConfig{MinLength: 20, MinAbsSlope: 0.5, MaxAbsSlope: 10}

	segments := []models.LineSegment{
		models.NewLineSegment(0, 0, 5, 5),       // too short
		models.NewLineSegment(0, 100, 100, 100), // horizontal
		models.NewLineSegment(50, 0, 50, 100),   // vertical
		models.NewLineSegment(100, 300, 120, 100),
		models.NewLineSegment(0, 0, 40, 40),
	}

	kept := filterSegments(segments, cfg)
	require.Len(t, kept, 2)
	assert.Equal(t, models.NewLineSegment(100, 300, 120, 100), kept[0])
	assert.Equal(t, models.NewLineSegment(0, 0, 40, 40), kept[1])
}

func TestFilterSegmentsUnboundedSlope(t *testing.T) {
	t.Parallel()

	kept := filterSegments([]models.LineSegment{
		models.NewLineSegment(0, 100, 100, 100),
		models.NewLineSegment(50, 0, 50, 100),
	}, config.HoughConfig{MinLength: 20})

	assert.Len(t, kept, 2)
	assert.True(t, math.IsInf(kept[1].AbsSlope(), 1))
}
