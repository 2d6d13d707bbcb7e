// Package control turns centerline estimates into actuator commands and moves
// them over the UDP link to the actuator board.
package control

import (
	"math"

	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
)

// SafeStop is sent before the perception loop has published anything.
var SafeStop = models.ControlMessage{Steering: 0, Throttle: 0, Emergency: true}

// Encoder applies the throttle safety band. Throttle outside
// [SafeLow, SafeHigh], or an explicit fault, sets the emergency flag.
type Encoder struct {
	SafeLow  float64
	SafeHigh float64
}

func NewEncoder(cfg config.ControlConfig) *Encoder {
	return &Encoder{SafeLow: cfg.ThrottleSafeLow, SafeHigh: cfg.ThrottleSafeHigh}
}

// IsEmergency is true unless throttle lies inside [SafeLow, SafeHigh]. NaN
// compares false against both bounds and so is an emergency.
func (e *Encoder) IsEmergency(throttle float64) bool {
	return !(throttle >= e.SafeLow && throttle <= e.SafeHigh)
}

// Encode builds the outbound message. A non-finite steering or throttle is
// sent as zero with the emergency flag set, keeping the datagram parseable.
func (e *Encoder) Encode(steering, throttle float64, fault bool) models.ControlMessage {
	emergency := fault || e.IsEmergency(throttle)
	if !isFinite(steering) {
		steering, emergency = 0, true
	}
	if !isFinite(throttle) {
		throttle = 0
	}

	return models.ControlMessage{
		Steering:  steering,
		Throttle:  throttle,
		Emergency: emergency,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SteeringMapper converts the smoothed centerline's horizontal offset from
// the image center into a steering command.
type SteeringMapper struct {
	Gain  float64
	Limit float64
}

func NewSteeringMapper(cfg config.ControlConfig) SteeringMapper {
	return SteeringMapper{Gain: cfg.SteeringGain, Limit: cfg.SteeringLimit}
}

// Steering returns Gain·(x−W/2)/(W/2) clamped to ±Limit. Without a point, or
// for a degenerate width, it steers straight.
func (m SteeringMapper) Steering(center *models.Point, width int) float64 {
	if center == nil || width <= 0 {
		return 0
	}

	half := float64(width) / 2
	steer := m.Gain * (center.X - half) / half
	return math.Max(-m.Limit, math.Min(m.Limit, steer))
}
