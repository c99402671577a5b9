package turbovac

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// loopConn is a fake serial connection: every write is echoed straight
// back as the next read, so exchange() round-trips through the real
// encode/decode path without a physical turbovac attached.
type loopConn struct {
	buf bytes.Buffer
}

func (l *loopConn) Write(p []byte) (int, error) {
	return l.buf.Write(p)
}

func (l *loopConn) Read(p []byte) (int, error) {
	return l.buf.Read(p)
}

func (l *loopConn) Close() error { return nil }

func newTestController() *Controller {
	return &Controller{name: "test", conn: &loopConn{}, state: TurbineState{SetpointHz: 1000}}
}

func TestControllerStartMarksRunning(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Start())
	require.True(t, c.State().Running)
	require.Equal(t, uint16(1000), c.State().SetpointHz)
}

func TestControllerStopMarksNotRunning(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Start())
	require.NoError(t, c.Stop())
	require.False(t, c.State().Running)
}

func TestControllerSetpointClampsRange(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Setpoint(5000))
	require.Equal(t, uint16(setpointMax), c.State().SetpointHz)

	require.NoError(t, c.Setpoint(-5))
	require.Equal(t, uint16(0), c.State().SetpointHz)
}

func TestControllerReadTempAppliesState(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.ReadTemp())
	_ = c.State()
}

func TestControllerReadShortFrame(t *testing.T) {
	c := newTestController()
	c.conn = &shortConn{}
	err := c.exchange(EncodeTelegram(EncodeParams{}))
	require.Error(t, err)
}

// shortConn accepts writes but returns EOF immediately on read, simulating
// a dropped connection mid-reply.
type shortConn struct{}

func (s *shortConn) Write(p []byte) (int, error) { return len(p), nil }
func (s *shortConn) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *shortConn) Close() error                { return nil }
