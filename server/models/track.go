package models

import (
	"math"
	"time"
)

// Frame is one decoded color image from the camera. Pix holds BGR bytes,
// row-major, three bytes per pixel.
type Frame struct {
	Seq        uint64    `json:"seq"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Pix        []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Side int

const (
	SideUnclassified Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unclassified"
	}
}

type LineSegment struct {
	X1     int     `json:"x1"`
	Y1     int     `json:"y1"`
	X2     int     `json:"x2"`
	Y2     int     `json:"y2"`
	Length float64 `json:"length"`
	Side   Side    `json:"side"`
}

// NewLineSegment builds an unclassified segment with its length filled in.
func NewLineSegment(x1, y1, x2, y2 int) LineSegment {
	return LineSegment{
		X1:     x1,
		Y1:     y1,
		X2:     x2,
		Y2:     y2,
		Length: math.Hypot(float64(x2-x1), float64(y2-y1)),
	}
}

func (s LineSegment) Midpoint() Point {
	return Point{
		X: float64(s.X1+s.X2) / 2,
		Y: float64(s.Y1+s.Y2) / 2,
	}
}

// AbsSlope returns |dy/dx|; vertical segments report +Inf.
func (s LineSegment) AbsSlope() float64 {
	dx := s.X2 - s.X1
	if dx == 0 {
		return math.Inf(1)
	}
	return math.Abs(float64(s.Y2-s.Y1) / float64(dx))
}

type ControlMessage struct {
	Steering  float64 `json:"steering"`
	Throttle  float64 `json:"throttle"`
	Emergency bool    `json:"emergency"`
}

// Telemetry is the six-field status report sent back by the actuator board.
type Telemetry struct {
	RPM           float64 `json:"rpm"`
	VESCVoltage   float64 `json:"vesc_voltage"`
	ODriveVoltage float64 `json:"odrive_voltage"`
	MotorCurrent  float64 `json:"motor_current"`
	ODriveCurrent float64 `json:"odrive_current"`
	SteeringAngle float64 `json:"steering_angle"`
}

// Report is one inbound datagram after decoding. Exactly one of Telemetry
// and Control is set.
type Report struct {
	From       string          `json:"from"`
	Text       string          `json:"text"`
	ReceivedAt time.Time       `json:"received_at"`
	Telemetry  *Telemetry      `json:"telemetry,omitempty"`
	Control    *ControlMessage `json:"control,omitempty"`
}

// FrameResult is what the perception loop derived from one frame.
type FrameResult struct {
	Seq        uint64         `json:"seq"`
	Segments   []LineSegment  `json:"segments"`
	Raw        *Point         `json:"raw,omitempty"`
	Smoothed   *Point         `json:"smoothed,omitempty"`
	MissStreak int            `json:"miss_streak"`
	Fault      bool           `json:"fault"`
	Message    ControlMessage `json:"message"`
	Latency    time.Duration  `json:"latency"`
}
