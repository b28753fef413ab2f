package web

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-pantilt/internal/log"
	"github.com/teslashibe/go-pantilt/pkg/hub"
	"github.com/teslashibe/go-pantilt/pkg/sim"
	"github.com/teslashibe/go-pantilt/pkg/state"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

func fixedStatus(st tracking.Status) StatusFunc {
	return func() tracking.Status { return st }
}

func TestHandleStatus(t *testing.T) {
	st := tracking.Status{RunID: "run-1", State: "running", Frames: 42}
	st.Shared.Object = state.Point{X: 10, Y: 20}
	s := NewServer(DefaultConfig(), fixedStatus(st), log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	var got tracking.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, uint64(42), got.Frames)
	assert.Equal(t, state.Point{X: 10, Y: 20}, got.Shared.Object)
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		state string
		code  int
	}{
		{"running", 200},
		{"shutting_down", 503},
		{"uninitialized", 503},
	}
	for _, tc := range tests {
		s := NewServer(DefaultConfig(), fixedStatus(tracking.Status{State: tc.state}), log.Discard())
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/health", nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, tc.code, resp.StatusCode, "state %s: %s", tc.state, body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(DefaultConfig(), fixedStatus(tracking.Status{}), log.Discard())
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 426, resp.StatusCode)
}

func startServer(t *testing.T, s *Server) (string, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return "ws://" + ln.Addr().String(), cancel
}

func TestStatusWebSocket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StatusInterval = 20 * time.Millisecond
	s := NewServer(cfg, fixedStatus(tracking.Status{RunID: "ws-run", State: "running"}), log.Discard())
	base, _ := startServer(t, s)

	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		var err error
		ws, _, err = websocket.DefaultDialer.Dial(base+"/ws/status", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer ws.Close()

	// Initial snapshot, then at least one periodic push.
	for i := 0; i < 2; i++ {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)

		var got tracking.Status
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "ws-run", got.RunID)
	}
}

func TestCameraWebSocket_StreamsPreview(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PreviewFPS = 100
	s := NewServer(cfg, fixedStatus(tracking.Status{}), log.Discard())
	base, _ := startServer(t, s)

	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		var err error
		ws, _, err = websocket.DefaultDialer.Dial(base+"/ws/camera", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.cameraHub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	scene := sim.DefaultConfig()
	scene.FrameInterval = 0
	frame, err := sim.NewCamera(sim.NewPlant(scene)).NextFrame(context.Background())
	require.NoError(t, err)
	loc, found, _ := sim.Detector{}.Locate(frame, state.Point{})
	s.Preview().ObserveFrame(frame, loc, found)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

type blankFrame struct{}

func (blankFrame) Size() image.Point   { return image.Pt(2, 2) }
func (blankFrame) FlipVertical() error { return nil }
func (blankFrame) Close() error        { return nil }

func TestEncode_UnknownFrame(t *testing.T) {
	data, err := encode(blankFrame{}, tracking.Location{}, false, 70)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestPreview_Throttle(t *testing.T) {
	h := hub.New("test", log.Discard())
	p := NewPreview(h, 10, 70, log.Discard())
	assert.False(t, p.due(), "no clients, no encoding")

	disabled := NewPreview(h, 0, 70, log.Discard())
	assert.False(t, disabled.due())
}
