package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsterZephyr/rotascope/config"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/session"
)

type fixture struct {
	hub    *hub.Hub
	state  *display.State
	router http.Handler
}

func newFixture(t *testing.T, conf config.Config) *fixture {
	h := hub.New()
	state, err := display.NewState(3, []message.Resolution{{1920, 1080}}, h)
	require.NoError(t, err)
	if conf.CheckOrigin == nil {
		conf.CheckOrigin = func(string) bool { return false }
	}
	sessions := session.NewServer(h, state, session.Options{RotationThreshold: 30, SessionBuffer: 8})
	return &fixture{hub: h, state: state, router: Router(conf, sessions, h, state, "1.2.3")}
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.do("GET", "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	health := Health{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, Health{Status: "up", Sessions: 0, Version: "1.2.3"}, health)
}

func TestConfig(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.state.Next()

	rec := f.do("GET", "/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"total_displays":3,"current_display":1,"resolutions":[[1920,1080],[1920,1080],[1920,1080]]}`, rec.Body.String())
}

func TestSwitchDisplay(t *testing.T) {
	f := newFixture(t, config.Config{})
	sender := hub.NewSender(8)
	f.hub.Register(sender, nil)

	rec := f.do("POST", "/display/previous")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current_display":2}`, rec.Body.String())
	assert.Equal(t, uint8(2), f.state.Current())

	msg := <-sender.C()
	assert.Equal(t, uint8(2), msg.(*message.DisplayConfig).CurrentDisplay)

	rec = f.do("POST", "/display/next")
	assert.JSONEq(t, `{"current_display":0}`, rec.Body.String())

	rec = f.do("POST", "/display/up")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uint8(0), f.state.Current())

	rec = f.do("GET", "/display/next")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, config.Config{})
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/metrics").Code)

	f = newFixture(t, config.Config{Prometheus: true})
	rec := f.do("GET", "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rotascope_sessions")
}

func TestStream(t *testing.T) {
	f := newFixture(t, config.Config{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := message.JSON.UnmarshalStatus(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), msg.(*message.DisplayConfig).TotalDisplays)
}
