package processor

import "github.com/EVTKSU/ROB-Autonomous/server/models"

// ClassifySegments tags each segment Left or Right by its midpoint against
// the frame's half width. A midpoint exactly on the center line is Right.
func ClassifySegments(segments []models.LineSegment, width int) {
	half := float64(width) / 2
	for i := range segments {
		if segments[i].Midpoint().X < half {
			segments[i].Side = models.SideLeft
		} else {
			segments[i].Side = models.SideRight
		}
	}
}

// EstimateCenterline classifies the segments, keeps the longest one per side
// (first wins a tie) and returns the average of the two midpoints. It returns
// nil unless both sides have a segment.
func EstimateCenterline(segments []models.LineSegment, width int) *models.Point {
	ClassifySegments(segments, width)

	left, right := -1, -1
	for i, seg := range segments {
		switch seg.Side {
		case models.SideLeft:
			if left < 0 || seg.Length > segments[left].Length {
				left = i
			}
		case models.SideRight:
			if right < 0 || seg.Length > segments[right].Length {
				right = i
			}
		}
	}

	if left < 0 || right < 0 {
		return nil
	}

	l, r := segments[left].Midpoint(), segments[right].Midpoint()
	return &models.Point{
		X: (l.X + r.X) / 2,
		Y: (l.Y + r.Y) / 2,
	}
}
