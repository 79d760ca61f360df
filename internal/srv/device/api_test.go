package device

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jypelle/cedarhud/apimodel"
	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/stretchr/testify/require"
)

type fakeHud struct {
	frame atomic.Pointer[render.Frame]
}

func (h *fakeHud) LatestFrame() *render.Frame {
	return h.frame.Load()
}

func (h *fakeHud) Status() apimodel.StatusData {
	return apimodel.StatusData{Version: "test", Brightness: 12, Link: apimodel.LinkStatus{Connected: true, Status: "solved"}}
}

func newTestApi(t *testing.T) (*Api, *config.ServerConfig, *fakeHud) {
	serverConfig, err := config.NewServerConfig(t.TempDir(), false, true)
	require.NoError(t, err)
	hud := &fakeHud{}
	return NewApi(serverConfig, hud), serverConfig, hud
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBrightnessRejectedThenAccepted(t *testing.T) {
	api, serverConfig, _ := newTestApi(t)
	before := serverConfig.Settings()

	rec := do(t, api.Router(), "POST", "/api/brightness", `{"brightness": 300}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errorMessage apimodel.ErrorMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errorMessage))
	require.Equal(t, http.StatusBadRequest, errorMessage.ErrStatusCode)
	require.Contains(t, errorMessage.ErrMessage, "brightness")
	require.Equal(t, before, serverConfig.Settings())

	rec = do(t, api.Router(), "POST", "/api/brightness", `{"brightness": 200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint8(200), serverConfig.Brightness())

	rec = do(t, api.Router(), "GET", "/api/brightness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var data apimodel.BrightnessData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.NotNil(t, data.Brightness)
	require.Equal(t, int64(200), *data.Brightness)
}

func TestBrightnessMalformedBody(t *testing.T) {
	api, serverConfig, _ := newTestApi(t)
	before := serverConfig.Settings()

	for _, body := range []string{``, `{}`, `{"brightness": "high"}`, `not json`, `{"brightness": 0}`, `{"brightness": -5}`} {
		rec := do(t, api.Router(), "POST", "/api/brightness", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	require.Equal(t, before, serverConfig.Settings())
}

func TestRotation(t *testing.T) {
	api, serverConfig, _ := newTestApi(t)

	rec := do(t, api.Router(), "POST", "/api/rotation", `{"rotation": 45}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, config.Rotation0, serverConfig.Rotation())

	rec = do(t, api.Router(), "POST", "/api/rotation", `{"rotation": 180}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, config.Rotation180, serverConfig.Rotation())

	rec = do(t, api.Router(), "GET", "/api/rotation", "")
	require.JSONEq(t, `{"rotation": 180}`, rec.Body.String())
}

func TestFrameEndpoint(t *testing.T) {
	api, _, hud := newTestApi(t)

	rec := do(t, api.Router(), "GET", "/api/frame", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	frame := render.NewFrame(0)
	frame.SetRGB565(1, 0, 0x1234)
	hud.frame.Store(frame)

	rec = do(t, api.Router(), "GET", "/api/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, frame.AppendLittleEndian(nil), rec.Body.Bytes())
}

func TestStatusAndRequestId(t *testing.T) {
	api, _, _ := newTestApi(t)

	rec := do(t, api.Router(), "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var status apimodel.StatusData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "solved", status.Link.Status)
}

func TestApiKey(t *testing.T) {
	api, serverConfig, _ := newTestApi(t)
	serverConfig.ApiParam.ApiKey = "secret"

	rec := do(t, api.Router(), "GET", "/api/is_alive", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest("GET", "/api/is_alive", nil)
	req.Header.Set("x-api-key", "secret")
	rec = httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWritesAreRateLimited(t *testing.T) {
	api, _, _ := newTestApi(t)

	limited := false
	for i := 0; i < 50 && !limited; i++ {
		rec := do(t, api.Router(), "POST", "/api/brightness", `{"brightness": 100}`)
		limited = rec.Code == http.StatusTooManyRequests
	}
	require.True(t, limited)

	// reads are not limited
	require.Equal(t, http.StatusOK, do(t, api.Router(), "GET", "/api/brightness", "").Code)
}

func TestUnknownRoute(t *testing.T) {
	api, _, _ := newTestApi(t)
	require.Equal(t, http.StatusNotFound, do(t, api.Router(), "GET", "/api/nope", "").Code)
	require.Equal(t, http.StatusMethodNotAllowed, do(t, api.Router(), "DELETE", "/api/brightness", "").Code)
}

func TestFrameStream(t *testing.T) {
	api, _, hud := newTestApi(t)
	frame := render.NewFrame(render.Dim)
	hud.frame.Store(frame)

	server := httptest.NewServer(api.Router())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/frame/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	require.Equal(t, frame.AppendLittleEndian(nil), payload)
}
