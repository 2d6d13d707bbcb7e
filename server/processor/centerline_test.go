package processor

import (
	"testing"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCenterlineAveragesSideMidpoints(t *testing.T) {
	t.Parallel()

	segments := []models.LineSegment{
		models.NewLineSegment(100, 300, 120, 100),
		models.NewLineSegment(540, 300, 520, 100),
	}

	center := EstimateCenterline(segments, 640)
	require.NotNil(t, center)
	assert.InDelta(t, 320, center.X, 1e-9)
	assert.InDelta(t, 200, center.Y, 1e-9)
	assert.Equal(t, models.SideLeft, segments[0].Side)
	assert.Equal(t, models.SideRight, segments[1].Side)
}

func TestClassifyBoundary(t *testing.T) {
	t.Parallel()

	segments := []models.LineSegment{
		models.NewLineSegment(320, 0, 320, 100),
		models.NewLineSegment(319, 0, 319, 100),
		models.NewLineSegment(300, 0, 341, 100), // midpoint 320.5
		models.NewLineSegment(300, 0, 339, 100), // midpoint 319.5
	}

	ClassifySegments(segments, 640)

	assert.Equal(t, models.SideRight, segments[0].Side)
	assert.Equal(t, models.SideLeft, segments[1].Side)
	assert.Equal(t, models.SideRight, segments[2].Side)
	assert.Equal(t, models.SideLeft, segments[3].Side)
}

func TestEstimateCenterlineNeedsBothSides(t *testing.T) {
	t.Parallel()

	assert.Nil(t, EstimateCenterline(nil, 640))
	assert.Nil(t, EstimateCenterline([]models.LineSegment{
		models.NewLineSegment(100, 300, 120, 100),
		models.NewLineSegment(50, 300, 60, 100),
	}, 640))
	assert.Nil(t, EstimateCenterline([]models.LineSegment{
		models.NewLineSegment(540, 300, 520, 100),
	}, 640))
}

func TestEstimateCenterlineUsesLongestPerSide(t *testing.T) {
	t.Parallel()

	segments := []models.LineSegment{
		models.NewLineSegment(100, 200, 100, 230), // short left
		models.NewLineSegment(200, 100, 200, 300), // long left, midpoint (200,200)
		models.NewLineSegment(400, 100, 400, 300), // right, midpoint (400,200)
		models.NewLineSegment(600, 150, 600, 200), // short right
	}

	center := EstimateCenterline(segments, 640)
	require.NotNil(t, center)
	assert.Equal(t, models.Point{X: 300, Y: 200}, *center)
}

func TestEstimateCenterlineTieKeepsFirst(t *testing.T) {
	t.Parallel()

	segments := []models.LineSegment{
		models.NewLineSegment(100, 100, 100, 200), // left, first
		models.NewLineSegment(200, 100, 200, 200), // left, same length
		models.NewLineSegment(500, 100, 500, 200),
	}

	center := EstimateCenterline(segments, 640)
	require.NotNil(t, center)
	assert.Equal(t, 300.0, center.X)
}
