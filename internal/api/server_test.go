package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionscope/motionscope/internal/engine"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, *Hub) {
	t.Helper()
	eng, err := engine.New(engine.DefaultSettings(), nil, nil)
	require.NoError(t, err)

	hub := NewHub(nil)
	go hub.Run()

	s := NewServer("127.0.0.1:0", eng, nil, hub, nil)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts, eng, hub
}

func getJSON(t *testing.T, url string) Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStatusEndpoint(t *testing.T) {
	ts, eng, _ := newTestServer(t)
	eng.Start()

	out := getJSON(t, ts.URL+"/api/status")
	require.True(t, out.Success)

	data, ok := out.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "background_subtraction", data["algorithm"])
	assert.Equal(t, float64(0), data["frames_processed"])
}

func TestSettingsRoundTrip(t *testing.T) {
	ts, eng, _ := newTestServer(t)

	out := getJSON(t, ts.URL+"/api/settings")
	require.True(t, out.Success)

	next := engine.DefaultSettings()
	next.Detection.Threshold = 45
	body, err := json.Marshal(next)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45, eng.Settings().Detection.Threshold)
}

func TestSettingsRejectsInvalid(t *testing.T) {
	ts, eng, _ := newTestServer(t)
	before := eng.Settings()

	bad := engine.DefaultSettings()
	bad.Detection.Threshold = 300
	body, _ := json.Marshal(bad)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, "invalid_settings", out.Error.Code)
	assert.Equal(t, before, eng.Settings())
}

func TestSettingsRejectsMalformedBody(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLifecycleEndpoints(t *testing.T) {
	ts, eng, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, eng.Running())

	resp, err = http.Post(ts.URL+"/api/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, eng.Running())

	resp, err = http.Post(ts.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Zero(t, eng.FramesProcessed())
}

func TestEventsWithoutStore(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, "store_disabled", out.Error.Code)
}

func TestTrackersEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	out := getJSON(t, ts.URL+"/api/trackers")
	assert.True(t, out.Success)
}

func TestWebSocketBroadcast(t *testing.T) {
	ts, _, hub := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The hub registers asynchronously; give it a moment before
	// broadcasting.
	time.Sleep(100 * time.Millisecond)
	hub.Broadcast("motion.detected", []byte(`{"id":"abc"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "motion.detected", msg.Subject)
	assert.JSONEq(t, `{"id":"abc"}`, string(msg.Data))
}
