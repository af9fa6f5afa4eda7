package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/app"
	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, Host: "127.0.0.1", Env: "test"},
		Game:   config.GameConfig{RateLimit: 100, RateBurst: 100},
	}

	hub := app.NewGameHub(app.HubConfig{}, logger)
	t.Cleanup(hub.Close)

	ts := httptest.NewServer(NewServer(cfg, hub, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func getJSON(t *testing.T, url string, wantStatus int, data interface{}) *envelope {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	if data != nil {
		require.NoError(t, json.Unmarshal(body.Data, data))
	}
	return &body
}

// wireEvent is the shape of every message the server pushes
type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// await reads until a message of msgType arrives
func await(t *testing.T, conn *websocket.Conn, msgType string) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event wireEvent
		require.NoError(t, conn.ReadJSON(&event), "waiting for %s", msgType)
		if event.Type == msgType {
			return event
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var health HealthResponse
	body := getJSON(t, ts.URL+"/api/health", http.StatusOK, &health)
	assert.True(t, body.Success)
	assert.Equal(t, "ok", health.Status)
}

func TestUnknownRoom(t *testing.T) {
	ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/api/rooms/NOPE1", http.StatusNotFound, nil)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "ROOM_NOT_FOUND", body.Error.Code)

	var exists RoomExistsResponse
	getJSON(t, ts.URL+"/api/rooms/NOPE1/exists", http.StatusOK, &exists)
	assert.False(t, exists.Exists)

	getJSON(t, ts.URL+"/api/rooms/NOPE1/qr", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/rooms/NOPE1/history", http.StatusNotFound, nil)
}

func TestRoomLifecycleOverWebSocket(t *testing.T) {
	ts := newTestServer(t)

	host := dial(t, ts)
	send(t, host, "ping", nil)
	await(t, host, "pong")

	send(t, host, "startGame", nil)
	var notInRoom struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(await(t, host, "error").Payload, &notInRoom))
	assert.Equal(t, "NOT_IN_ROOM", notInRoom.Code)

	send(t, host, "createRoom", map[string]string{"name": "alice"})
	var created struct {
		RoomCode string `json:"roomCode"`
		IsHost   bool   `json:"isHost"`
	}
	require.NoError(t, json.Unmarshal(await(t, host, "roomCreated").Payload, &created))
	require.Len(t, created.RoomCode, app.DefaultRoomCodeLength)
	assert.True(t, created.IsHost)

	guest := dial(t, ts)
	send(t, guest, "joinRoom", map[string]string{"roomCode": strings.ToLower(created.RoomCode), "name": "bob"})
	var joined struct {
		Name   string `json:"name"`
		IsHost bool   `json:"isHost"`
	}
	require.NoError(t, json.Unmarshal(await(t, guest, "joinedRoom").Payload, &joined))
	assert.Equal(t, "bob", joined.Name)
	assert.False(t, joined.IsHost)

	send(t, host, "startGame", nil)
	var tooFew struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(await(t, host, "error").Payload, &tooFew))
	assert.Equal(t, "NOT_ENOUGH_PLAYERS", tooFew.Code)

	var info app.RoomInfo
	getJSON(t, ts.URL+"/api/rooms/"+created.RoomCode, http.StatusOK, &info)
	assert.Equal(t, 2, info.PlayerCount)
	assert.Equal(t, 2, info.ConnectedCount)
	assert.True(t, info.CanJoin)
	assert.Equal(t, "alice", info.Host)

	var exists RoomExistsResponse
	getJSON(t, ts.URL+"/api/rooms/"+created.RoomCode+"/exists", http.StatusOK, &exists)
	assert.True(t, exists.Exists)

	var stats StatsResponse
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	assert.Equal(t, StatsResponse{ActiveRooms: 1, TotalPlayers: 2}, stats)

	var history HistoryResponse
	getJSON(t, ts.URL+"/api/rooms/"+created.RoomCode+"/history", http.StatusOK, &history)
	assert.Equal(t, created.RoomCode, history.RoomCode)
	assert.Empty(t, history.Rounds)

	resp, err := http.Get(ts.URL + "/api/rooms/" + created.RoomCode + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	// The guest leaving is seen by the host
	send(t, guest, "leaveRoom", nil)
	await(t, guest, "playerLeft")
	await(t, host, "playerLeft")
}
