package processor

import "github.com/EVTKSU/ROB-Autonomous/server/models"

// Smoother is a per-axis exponential moving average over centerline
// estimates. It is owned by a single perception loop and is not safe for
// concurrent use.
type Smoother struct {
	alpha float64
	last  models.Point
	valid bool
}

func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &Smoother{alpha: alpha}
}

// Update folds raw into the state and returns the smoothed point. A nil raw
// leaves the state alone and returns the previous value, which is nil until
// the first estimate arrives. The first estimate is taken as is.
func (s *Smoother) Update(raw *models.Point) *models.Point {
	switch {
	case raw == nil:
	case !s.valid:
		s.last = *raw
		s.valid = true
	default:
		s.last = models.Point{
			X: s.alpha*raw.X + (1-s.alpha)*s.last.X,
			Y: s.alpha*raw.Y + (1-s.alpha)*s.last.Y,
		}
	}
	return s.Current()
}

func (s *Smoother) Current() *models.Point {
	if !s.valid {
		return nil
	}
	p := s.last
	return &p
}

// Reset forgets the smoothed point; used when the control loop restarts.
func (s *Smoother) Reset() {
	s.last = models.Point{}
	s.valid = false
}

func (s *Smoother) Alpha() float64 {
	return s.alpha
}
