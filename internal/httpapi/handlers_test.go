package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/quiz-battle-backend/internal/auth"
	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/questions"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/types"
)

type testServer struct {
	*httptest.Server
	auth *auth.Verifier
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zaptest.NewLogger(t)
	bank, err := questions.LoadFile("../../data/questions.json")
	require.NoError(t, err)
	st := store.NewMemory()
	broker := channel.NewBroker(log, 32)
	t.Cleanup(func() { _ = broker.Close() })

	h := hub.NewHub(ctx, room.Deps{Store: st, Bank: bank, Transport: broker, Logger: log},
		room.Options{TickInterval: 50 * time.Millisecond}, engine.DefaultRules())
	v := auth.NewVerifier("test-secret", time.Hour)

	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:       h,
		Store:     st,
		Transport: broker,
		Auth:      v,
		Rules:     engine.DefaultRules(),
		Logger:    log,
		Dev:       true,
	}))
	t.Cleanup(srv.Close)
	return testServer{Server: srv, auth: v}
}

func (s testServer) token(t *testing.T, identity string) string {
	t.Helper()
	tok, err := s.auth.Issue(identity)
	require.NoError(t, err)
	return tok
}

func (s testServer) createRoom(t *testing.T, host string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.URL+"/rooms", strings.NewReader(body))
	require.NoError(t, err)
	if host != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, host))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const validRoom = `{"name":"Friday quiz","time_limit_seconds":15,"question_count":5,"question_set_ref":"general"}`

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRoom_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		host   string
		body   string
		status int
	}{
		{"no token", "", validRoom, http.StatusUnauthorized},
		{"bad json", "host", `{`, http.StatusBadRequest},
		{"missing name", "host", `{"time_limit_seconds":15,"question_count":5}`, http.StatusBadRequest},
		{"limit too short", "host", `{"name":"x","time_limit_seconds":4,"question_count":5}`, http.StatusBadRequest},
		{"too many questions", "host", `{"name":"x","time_limit_seconds":15,"question_count":51}`, http.StatusBadRequest},
		{"bad visibility", "host", `{"name":"x","visibility":"secret","time_limit_seconds":15,"question_count":5}`, http.StatusBadRequest},
		{"ok", "host", validRoom, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.createRoom(t, tt.host, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCreateListAndSnapshot(t *testing.T) {
	s := newTestServer(t)

	resp := s.createRoom(t, "host-1", validRoom)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.ID, 6)

	private := s.createRoom(t, "host-2", `{"name":"secret","visibility":"private","time_limit_seconds":15,"question_count":5}`)
	require.Equal(t, http.StatusCreated, private.StatusCode)

	list, err := http.Get(s.URL + "/rooms")
	require.NoError(t, err)
	defer list.Body.Close()
	var rooms []types.RoomListing
	require.NoError(t, json.NewDecoder(list.Body).Decode(&rooms))
	require.Len(t, rooms, 1, "private rooms are not listed")
	assert.Equal(t, created.ID, rooms[0].ID)
	assert.Equal(t, 1, rooms[0].Summary.PlayerCount)
	assert.Equal(t, 3, rooms[0].Summary.OpenSlots)

	snapResp, err := http.Get(s.URL + "/rooms/" + created.ID)
	require.NoError(t, err)
	defer snapResp.Body.Close()
	var snap types.RoomSnapshot
	require.NoError(t, json.NewDecoder(snapResp.Body).Decode(&snap))
	assert.Equal(t, "host-1", snap.Room.HostID)
	assert.Equal(t, "waiting", snap.Room.Status)
	assert.Equal(t, "host-1", snap.Slots[0].OccupantID)
	assert.Nil(t, snap.Round)

	missing, err := http.Get(s.URL + "/rooms/NOPE00")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestDevToken(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Post(s.URL+"/dev/token", "application/json", bytes.NewBufferString(`{"identity":"zoe"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	id, err := s.auth.Verify(out["token"])
	require.NoError(t, err)
	assert.Equal(t, "zoe", id)
}

func dial(t *testing.T, s testServer, path, identity string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path + "?token=" + s.token(t, identity)
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

type frame struct {
	Type      string          `json:"type"`
	Version   int             `json:"version"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
	Error     *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, c *websocket.Conn, want string) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, c, &f), "waiting for %s", want)
		if f.Type == want {
			return f
		}
	}
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, v))
}

func TestRoomSocket_JoinFlow(t *testing.T) {
	s := newTestServer(t)
	resp := s.createRoom(t, "host", validRoom)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	host := dial(t, s, "/ws/rooms/"+created.ID, "host")
	first := readUntil(t, host, "snapshot")
	var snap types.RoomSnapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Equal(t, created.ID, snap.Room.ID)

	guest := dial(t, s, "/ws/rooms/"+created.ID, "guest")
	readUntil(t, guest, "snapshot")

	send(t, guest, map[string]any{"type": "join", "request_id": "r1"})
	ack := readUntil(t, guest, "ack")
	assert.Equal(t, "r1", ack.RequestID)
	assert.JSONEq(t, `{"slot_index":1}`, string(ack.Payload))

	changed := readUntil(t, host, "SlotChanged")
	assert.Equal(t, 1, changed.Version)
	assert.JSONEq(t, `{"slot_index":1,"type":"player","occupant_id":"guest"}`, string(changed.Payload))

	// only the host may start the game
	send(t, guest, map[string]any{"type": "start_game", "request_id": "r2"})
	denied := readUntil(t, guest, "error")
	assert.Equal(t, "r2", denied.RequestID)
	assert.Equal(t, "not_authorized", denied.Error.Code)

	send(t, host, map[string]any{"type": "start_game", "request_id": "r3"})
	readUntil(t, host, "ack")
	start := readUntil(t, guest, "QuestionStart")
	assert.NotContains(t, string(start.Payload), "is_correct")

	send(t, guest, map[string]any{"type": "nonsense", "request_id": "r4"})
	bad := readUntil(t, guest, "error")
	assert.Equal(t, "bad_request", bad.Error.Code)
}

func TestRoomSocket_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http")+"/ws/rooms/ABC123", nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestLobbySocket_ListsThenStreams(t *testing.T) {
	s := newTestServer(t)
	resp := s.createRoom(t, "host", validRoom)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	lobby := dial(t, s, "/ws/lobby", "anyone")
	first := readUntil(t, lobby, "rooms")
	var rooms []types.RoomListing
	require.NoError(t, json.Unmarshal(first.Payload, &rooms))
	require.Len(t, rooms, 1)

	// rooms created after the dial show up, private ones never do
	s.createRoom(t, "host-2", `{"name":"secret","visibility":"private","time_limit_seconds":15,"question_count":5}`)
	later := s.createRoom(t, "host-3", `{"name":"Late quiz","time_limit_seconds":15,"question_count":5}`)
	var second struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(later.Body).Decode(&second))

	opened := readUntil(t, lobby, "RoomOpened")
	var listing types.RoomListing
	require.NoError(t, json.Unmarshal(opened.Payload, &listing))
	assert.Equal(t, second.ID, listing.ID)
	assert.Equal(t, "Late quiz", listing.Name)
	assert.Equal(t, "host-3", listing.HostID)
	assert.Equal(t, "waiting", listing.Status)

	guest := dial(t, s, "/ws/rooms/"+created.ID, "guest")
	readUntil(t, guest, "snapshot")
	send(t, guest, map[string]any{"type": "join"})

	update := readUntil(t, lobby, "SlotSummaryChanged")
	assert.JSONEq(t, `{"room_id":"`+created.ID+`","summary":{"player_count":2,"bot_count":0,"open_slots":2,"locked_slots":0}}`, string(update.Payload))
}
