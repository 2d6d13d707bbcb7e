package control

import (
	"math"
	"testing"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalControl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  models.ControlMessage
		want string
	}{
		{models.ControlMessage{Steering: 2.2, Throttle: 45.0}, "2.2,45.0,0"},
		{SafeStop, "0.0,0.0,1"},
		{models.ControlMessage{Steering: -12.5, Throttle: 30, Emergency: true}, "-12.5,30.0,1"},
		{models.ControlMessage{Steering: 0.1, Throttle: 100}, "0.1,100.0,0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, string(MarshalControl(tt.msg)))
	}
}

func TestControlRoundTrip(t *testing.T) {
	t.Parallel()

	msg := models.ControlMessage{Steering: 2.2, Throttle: 45.0, Emergency: false}
	wire := MarshalControl(msg)
	require.Equal(t, "2.2,45.0,0", string(wire))

	got, err := ParseControl(string(wire))
	require.NoError(t, err)
	assert.InDelta(t, 2.2, got.Steering, 1e-12)
	assert.InDelta(t, 45.0, got.Throttle, 1e-12)
	assert.False(t, got.Emergency)
}

func TestParseControlRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"2.2,45.0",
		"2.2,45.0,0,9",
		"left,45.0,0",
		"2.2,fast,0",
		"2.2,45.0,yes",
		"NaN,45.0,0",
		"2.2,Inf,0",
		"0x1p-2,45.0,0",
		"1e3,45.0,0",
		"2.2,4.5.0,0",
		"-,45.0,0",
		"2.2,.,0",
	} {
		_, err := ParseControl(text)
		require.Error(t, err, "text %q", text)
		assert.ErrorIs(t, err, faults.ErrReceiveDecode, "text %q", text)
	}
}

func TestParseControlAcceptsPlainDecimals(t *testing.T) {
	t.Parallel()

	got, err := ParseControl("-2,+45.,1")
	require.NoError(t, err)
	assert.Equal(t, models.ControlMessage{Steering: -2, Throttle: 45, Emergency: true}, got)

	got, err = ParseControl(".5,007.25,0")
	require.NoError(t, err)
	assert.Equal(t, models.ControlMessage{Steering: 0.5, Throttle: 7.25}, got)
}

func TestParseControlToleratesWhitespace(t *testing.T) {
	t.Parallel()

	got, err := ParseControl(" 1.5, 20 ,1\r\n")
	require.NoError(t, err)
	assert.Equal(t, models.ControlMessage{Steering: 1.5, Throttle: 20, Emergency: true}, got)
}

func TestParseTelemetry(t *testing.T) {
	t.Parallel()

	got, err := ParseTelemetry("1200,48.1,47.9,12.5,3.25,-7")
	require.NoError(t, err)
	assert.Equal(t, models.Telemetry{
		RPM:           1200,
		VESCVoltage:   48.1,
		ODriveVoltage: 47.9,
		MotorCurrent:  12.5,
		ODriveCurrent: 3.25,
		SteeringAngle: -7,
	}, got)

	_, err = ParseTelemetry("1200,48.1,47.9,12.5,3.25")
	assert.ErrorIs(t, err, faults.ErrReceiveDecode)
}

func TestParseReportDispatchesOnFieldCount(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	report, err := ParseReport([]byte("1200,48.1,47.9,12.5,3.25,-7"), "192.168.0.177:8888", at)
	require.NoError(t, err)
	require.NotNil(t, report.Telemetry)
	assert.Nil(t, report.Control)
	assert.Equal(t, "192.168.0.177:8888", report.From)
	assert.Equal(t, at, report.ReceivedAt)

	report, err = ParseReport([]byte("2.2,45.0,0"), "192.168.0.177:8888", at)
	require.NoError(t, err)
	require.NotNil(t, report.Control)
	assert.Nil(t, report.Telemetry)

	_, err = ParseReport([]byte("hello"), "192.168.0.177:8888", at)
	assert.ErrorIs(t, err, faults.ErrReceiveDecode)
	assert.True(t, faults.IsRecoverable(err))
}

func TestLossyDecode(t *testing.T) {
	t.Parallel()

	payload := []byte{'2', '.', '2', ',', 0xff, 0xfe, ',', '0'}
	assert.Equal(t, "2.2,�,0", DecodeText(payload))

	report, err := ParseReport(payload, "peer", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrReceiveDecode)
	assert.Equal(t, "2.2,�,0", report.Text)
}

func TestFormatDecimal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.0", formatDecimal(1))
	assert.Equal(t, "-3.0", formatDecimal(-3))
	assert.Equal(t, "0.125", formatDecimal(0.125))
	assert.Equal(t, "NaN", formatDecimal(math.NaN()))
}
