package control

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
)

const (
	controlFields   = 3
	telemetryFields = 6
)

// MarshalControl renders "steering,throttle,emergency", e.g. "2.2,45.0,0".
func MarshalControl(msg models.ControlMessage) []byte {
	emergency := "0"
	if msg.Emergency {
		emergency = "1"
	}
	return []byte(formatDecimal(msg.Steering) + "," + formatDecimal(msg.Throttle) + "," + emergency)
}

// formatDecimal is the shortest representation that round-trips, with ".0"
// appended to integral values.
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

// DecodeText decodes a datagram as UTF-8, replacing invalid sequences with U+FFFD.
func DecodeText(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "�")
}

func ParseControl(text string) (models.ControlMessage, error) {
	fields, err := splitFields(text, controlFields, "parse control")
	if err != nil {
		return models.ControlMessage{}, err
	}

	steering, err := parseNumber(fields[0], "steering", "parse control")
	if err != nil {
		return models.ControlMessage{}, err
	}
	throttle, err := parseNumber(fields[1], "throttle", "parse control")
	if err != nil {
		return models.ControlMessage{}, err
	}

	var emergency bool
	switch fields[2] {
	case "0":
	case "1":
		emergency = true
	default:
		return models.ControlMessage{}, faults.Errorf(faults.ReceiveDecodeError, "parse control",
			"emergency flag %q is not 0 or 1", fields[2])
	}

	return models.ControlMessage{Steering: steering, Throttle: throttle, Emergency: emergency}, nil
}

func ParseTelemetry(text string) (models.Telemetry, error) {
	const op = "parse telemetry"

	fields, err := splitFields(text, telemetryFields, op)
	if err != nil {
		return models.Telemetry{}, err
	}

	names := [telemetryFields]string{"rpm", "vesc voltage", "odrive voltage", "motor current", "odrive current", "steering angle"}
	var values [telemetryFields]float64
	for i, field := range fields {
		v, err := parseNumber(field, names[i], op)
		if err != nil {
			return models.Telemetry{}, err
		}
		values[i] = v
	}

	return models.Telemetry{
		RPM:           values[0],
		VESCVoltage:   values[1],
		ODriveVoltage: values[2],
		MotorCurrent:  values[3],
		ODriveCurrent: values[4],
		SteeringAngle: values[5],
	}, nil
}

// ParseReport decodes one inbound datagram. Six fields are telemetry, three
// are a control echo; anything else is a ReceiveDecodeError.
func ParseReport(payload []byte, from string, receivedAt time.Time) (models.Report, error) {
	text := DecodeText(payload)
	report := models.Report{From: from, Text: text, ReceivedAt: receivedAt}

	switch n := strings.Count(strings.TrimSpace(text), ",") + 1; n {
	case telemetryFields:
		t, err := ParseTelemetry(text)
		if err != nil {
			return report, err
		}
		report.Telemetry = &t
	case controlFields:
		c, err := ParseControl(text)
		if err != nil {
			return report, err
		}
		report.Control = &c
	default:
		return report, faults.Errorf(faults.ReceiveDecodeError, "parse report",
			"unexpected field count %d in %q", n, text)
	}

	return report, nil
}

func splitFields(text string, want int, op string) ([]string, error) {
	fields := strings.Split(strings.TrimSpace(text), ",")
	if len(fields) != want {
		return nil, faults.Errorf(faults.ReceiveDecodeError, op, "expected %d fields, got %d", want, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

// parseNumber accepts plain decimals only: an optional sign, digits and at
// most one point. Exponents, hex floats, NaN and Inf are rejected even though
// strconv would take them.
func parseNumber(field, name, op string) (float64, error) {
	if !isDecimal(field) {
		return 0, faults.Errorf(faults.ReceiveDecodeError, op, "%s is not a decimal: %q", name, field)
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, faults.Errorf(faults.ReceiveDecodeError, op, "%s: %w", name, err)
	}
	return v, nil
}

func isDecimal(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}

	digits, points := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			points++
		default:
			return false
		}
	}
	return digits > 0 && points <= 1
}
