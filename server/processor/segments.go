package processor

import (
	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"gocv.io/x/gocv"
)

// SegmentDetector finds straight track edges in a mask: Canny followed by the
// probabilistic Hough transform.
type SegmentDetector struct {
	cfg config.HoughConfig
}

func NewSegmentDetector(cfg config.HoughConfig) *SegmentDetector {
	return &SegmentDetector{cfg: cfg}
}

// Detect returns segments in transform order. An empty mask yields none.
func (d *SegmentDetector) Detect(mask gocv.Mat) []models.LineSegment {
	if mask.Empty() || gocv.CountNonZero(mask) == 0 {
		return nil
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(mask, &edges, d.cfg.CannyLow, d.cfg.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines,
		d.cfg.Rho, d.cfg.ThetaStep, d.cfg.VoteThreshold, d.cfg.MinLength, d.cfg.MaxGap)

	segments := make([]models.LineSegment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segments = append(segments, models.NewLineSegment(int(v[0]), int(v[1]), int(v[2]), int(v[3])))
	}

	return filterSegments(segments, d.cfg)
}

// filterSegments drops segments shorter than MinLength and, when a bound is
// set, those whose |slope| falls outside [MinAbsSlope, MaxAbsSlope].
func filterSegments(segments []models.LineSegment, cfg config.HoughConfig) []models.LineSegment {
	kept := segments[:0]
	for _, seg := range segments {
		if seg.Length < float64(cfg.MinLength) {
			continue
		}

		slope := seg.AbsSlope()
		if cfg.MinAbsSlope > 0 && slope < cfg.MinAbsSlope {
			continue
		}
		if cfg.MaxAbsSlope > 0 && slope > cfg.MaxAbsSlope {
			continue
		}

		kept = append(kept, seg)
	}
	return kept
}
