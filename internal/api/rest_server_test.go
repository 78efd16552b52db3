package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/game"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/replay"
	"github.com/annel0/blockroll/internal/storage"
	"github.com/annel0/blockroll/internal/world"
)

const levelsDir = "../../assets/levels"

type testEnv struct {
	server  *RestServer
	manager *game.Manager
	replays *storage.MemoryReplayRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	levels := storage.NewMemoryLevelRepo()
	n, err := storage.ImportDir(context.Background(), levels, levelsDir)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	replays := storage.NewMemoryReplayRepo()

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { _ = bus.Close() })

	quiet := logging.NewWriterLogger("api", io.Discard, logging.ERROR)
	m := game.NewManager(levels, replays, game.Options{Bus: bus, Logger: quiet})

	srv := NewRestServer(Config{
		Port:     ":0",
		Manager:  m,
		Registry: prometheus.NewRegistry(),
		Logger:   quiet,
	})
	return &testEnv{server: srv, manager: m, replays: replays}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// data перекодирует поле Data ответа в out
func data(t *testing.T, resp GenericResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (e *testEnv) createSession(t *testing.T, levelID string) game.Snapshot {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{LevelID: levelID})
	require.Equal(t, http.StatusCreated, w.Code, resp.Message)
	var snap game.Snapshot
	data(t, resp, &snap)
	return snap
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w, _ := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServerInfo(t *testing.T) {
	e := newTestEnv(t)
	w, resp := e.do(t, http.MethodGet, "/api/server", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	info, okCast := resp.Data.(map[string]interface{})
	require.True(t, okCast)
	assert.Equal(t, Version, info["version"])
	assert.EqualValues(t, 0, info["active_sessions"])
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	w, _ := e.do(t, http.MethodOptions, "/api/levels", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/api/levels", nil)

	w, _ := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

func TestLevels_ListAndGet(t *testing.T) {
	e := newTestEnv(t)

	w, resp := e.do(t, http.MethodGet, "/api/levels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list, okCast := resp.Data.([]interface{})
	require.True(t, okCast)
	assert.Len(t, list, 3)

	w, resp = e.do(t, http.MethodGet, "/api/levels/classic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lvl LevelResponse
	data(t, resp, &lvl)
	assert.Equal(t, "classic", lvl.ID)
	assert.Contains(t, lvl.Layout, "S")
	assert.Contains(t, lvl.Layout, "E")

	w, _ = e.do(t, http.MethodGet, "/api/levels/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLevels_Solution(t *testing.T) {
	e := newTestEnv(t)

	w, resp := e.do(t, http.MethodGet, "/api/levels/classic/solution", nil)
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	var sol SolutionResponse
	data(t, resp, &sol)
	assert.Equal(t, 7, sol.Moves)
	assert.Len(t, sol.Directions, 7)

	w, resp = e.do(t, http.MethodGet, "/api/levels/corridor/solution", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data(t, resp, &sol)
	assert.Equal(t, []entity.Direction{entity.Up, entity.Up, entity.Up, entity.Up}, sol.Directions)
}

func TestLevels_SaveAndDelete(t *testing.T) {
	e := newTestEnv(t)

	doc := map[string]interface{}{
		"id":     "tiny",
		"layout": "S##E",
	}
	w, resp := e.do(t, http.MethodPost, "/api/levels", doc)
	require.Equal(t, http.StatusCreated, w.Code, resp.Message)

	w, _ = e.do(t, http.MethodGet, "/api/levels/tiny", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/levels/tiny", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/levels/tiny", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLevels_SaveInvalid(t *testing.T) {
	e := newTestEnv(t)

	// нет финиша
	w, resp := e.do(t, http.MethodPost, "/api/levels", map[string]interface{}{"id": "bad", "layout": "S##"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, resp.Success)

	req := httptest.NewRequest(http.MethodPost, "/api/levels", strings.NewReader("id: [unterminated"))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLevels_Generate(t *testing.T) {
	e := newTestEnv(t)

	w, resp := e.do(t, http.MethodPost, "/api/levels/generate", GenerateRequest{
		ID:        "gen-1",
		Seed:      42,
		Threshold: 0.01,
		Save:      true,
	})
	require.Equal(t, http.StatusCreated, w.Code, resp.Message)

	var lvl LevelResponse
	data(t, resp, &lvl)
	assert.Equal(t, "gen-1", lvl.ID)
	assert.NotEmpty(t, lvl.Layout)

	w, _ = e.do(t, http.MethodGet, "/api/levels/gen-1/solution", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLevels_GenerateTooLarge(t *testing.T) {
	e := newTestEnv(t)

	w, resp := e.do(t, http.MethodPost, "/api/levels/generate", GenerateRequest{Width: 100000, Height: 100000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)

	w, _ = e.do(t, http.MethodPost, "/api/levels/generate", GenerateRequest{Height: 65})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLevels_SaveOutOfRange(t *testing.T) {
	e := newTestEnv(t)

	docs := map[string]string{
		"wide": "id: wide\nfloor: [{x: 0, z: 0}, {x: 1e15, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 0, z: 0}",
		"nan":  "id: nan\nfloor: [{x: 0, z: 0}, {x: .nan, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 0, z: 0}",
		"long": "id: long\nfloor: [{x: 0, z: 0}, {x: 5000, z: 0}]\nstart: {x: 0, z: 0}\nend: {x: 5000, z: 0}",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/levels", strings.NewReader(doc))
			rec := httptest.NewRecorder()
			e.server.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}

	w, _ := e.do(t, http.MethodGet, "/api/levels/wide", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_PlayCorridor(t *testing.T) {
	e := newTestEnv(t)
	snap := e.createSession(t, "corridor")
	assert.Equal(t, "corridor", snap.LevelID)
	assert.False(t, snap.GameOver)

	movePath := "/api/sessions/" + snap.ID + "/moves"
	for i := 0; i < 4; i++ {
		w, resp := e.do(t, http.MethodPost, movePath, MoveRequest{Direction: "up"})
		require.Equal(t, http.StatusAccepted, w.Code, resp.Message)

		var mv MoveResponse
		data(t, resp, &mv)
		assert.Equal(t, "up", mv.Direction)
		assert.True(t, mv.Session.Busy)

		// поворот еще идет
		w, _ = e.do(t, http.MethodPost, movePath, MoveRequest{Direction: "up"})
		assert.Equal(t, http.StatusConflict, w.Code)

		e.manager.TickAll(1)
	}

	w, resp := e.do(t, http.MethodGet, "/api/sessions/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after game.Snapshot
	data(t, resp, &after)
	assert.True(t, after.GameOver)
	assert.Equal(t, 4, after.Moves)

	w, _ = e.do(t, http.MethodPost, movePath, MoveRequest{Direction: "down"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp = e.do(t, http.MethodGet, "/api/sessions/"+snap.ID+"/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec replay.Recording
	data(t, resp, &rec)
	assert.Len(t, rec.Steps, 4)
}

func TestSessions_MoveErrors(t *testing.T) {
	e := newTestEnv(t)
	snap := e.createSession(t, "corridor")
	movePath := "/api/sessions/" + snap.ID + "/moves"

	w, _ := e.do(t, http.MethodPost, movePath, MoveRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPost, movePath, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// в коридоре вбок некуда
	w, resp := e.do(t, http.MethodPost, movePath, MoveRequest{Direction: "left"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, resp.Message, "blocked")

	w, _ = e.do(t, http.MethodPost, "/api/sessions/nope/moves", MoveRequest{Direction: "up"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_PauseResumeReset(t *testing.T) {
	e := newTestEnv(t)
	snap := e.createSession(t, "corridor")
	base := "/api/sessions/" + snap.ID

	w, resp := e.do(t, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var paused game.Snapshot
	data(t, resp, &paused)
	assert.True(t, paused.Paused)

	w, _ = e.do(t, http.MethodPost, base+"/moves", MoveRequest{Direction: "w"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.do(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodPost, base+"/moves", MoveRequest{Direction: "w"})
	require.Equal(t, http.StatusAccepted, w.Code)
	e.manager.TickAll(1)

	w, resp = e.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reset game.Snapshot
	data(t, resp, &reset)
	assert.Equal(t, 0, reset.Moves)
	assert.Equal(t, snap.Pose, reset.Pose)

	// попытка до перезапуска сохранена
	recs, err := e.replays.List(context.Background(), "corridor")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSessions_ListAndDelete(t *testing.T) {
	e := newTestEnv(t)
	a := e.createSession(t, "corridor")
	e.createSession(t, "classic")

	w, resp := e.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []game.Snapshot
	data(t, resp, &list)
	assert.Len(t, list, 2)

	w, _ = e.do(t, http.MethodDelete, "/api/sessions/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodDelete, "/api/sessions/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, e.manager.Count())

	w, _ = e.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{LevelID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplays_ListGetVerify(t *testing.T) {
	e := newTestEnv(t)
	snap := e.createSession(t, "corridor")
	for i := 0; i < 4; i++ {
		w, _ := e.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/moves", MoveRequest{Direction: "up"})
		require.Equal(t, http.StatusAccepted, w.Code)
		e.manager.TickAll(1)
	}
	w, _ := e.do(t, http.MethodDelete, "/api/sessions/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := e.do(t, http.MethodGet, "/api/replays?level_id=corridor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []replay.Recording
	data(t, resp, &recs)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Completed)

	w, _ = e.do(t, http.MethodGet, "/api/replays/"+recs[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, http.MethodPost, "/api/replays/"+recs[0].ID+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code, resp.Message)
	var v VerifyResponse
	data(t, resp, &v)
	assert.True(t, v.Completed)
	assert.Equal(t, 4, v.Moves)

	w, _ = e.do(t, http.MethodPost, "/api/replays/missing/verify", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplays_NoRepo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := game.NewManager(storage.NewMemoryLevelRepo(), nil, game.Options{})
	srv := NewRestServer(Config{
		Manager:  m,
		Registry: prometheus.NewRegistry(),
		Logger:   logging.NewWriterLogger("api", io.Discard, logging.ERROR),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/replays", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{game.ErrSessionNotFound, http.StatusNotFound},
		{entity.ErrInvalidDirection, http.StatusBadRequest},
		{entity.ErrMoveBlocked, http.StatusConflict},
		{entity.ErrTransitionInProgress, http.StatusConflict},
		{game.ErrSessionPaused, http.StatusConflict},
		{game.ErrGameOver, http.StatusConflict},
		{replay.ErrDiverged, http.StatusConflict},
		{world.ErrGridTooLarge, http.StatusUnprocessableEntity},
		{world.ErrBadCoordinate, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5e9))
	assert.Equal(t, "2м 3с", formatUptime(123e9))
}
