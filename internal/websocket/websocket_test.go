package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yourusername/buildle-api/internal/config"
	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/feed"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
	"github.com/yourusername/buildle-api/internal/service"
	"github.com/yourusername/buildle-api/internal/service/session"
)

const (
	targetWord = "كتاب"
	wrongWord  = "سلام"
)

// fakeStore подменяет сервисы, которые читает сессия
type fakeStore struct {
	mu        sync.Mutex
	challenge *entity.Challenge
	getErr    error
	outcome   service.Outcome
	submits   []service.SubmitInput
}

func (f *fakeStore) Get(_ context.Context, _ string) (*entity.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	c := *f.challenge
	return &c, nil
}

func (f *fakeStore) Players(_ context.Context, _ string) ([]entity.ChallengePlayer, error) {
	return nil, nil
}

func (f *fakeStore) RoundResults(_ context.Context, _ string, _ int) ([]entity.ChallengeResult, error) {
	return nil, nil
}

func (f *fakeStore) Standings(_ context.Context, _ string) ([]entity.MatchScore, error) {
	return nil, nil
}

func (f *fakeStore) Submit(_ context.Context, in service.SubmitInput) (*service.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, in)
	out := f.outcome
	return &out, nil
}

func (f *fakeStore) submitted() []service.SubmitInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.SubmitInput(nil), f.submits...)
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type harness struct {
	store  *fakeStore
	hub    *Hub
	server *httptest.Server
}

func newHarness(t *testing.T, c *entity.Challenge, cfg ClientConfig) *harness {
	t.Helper()
	store := &fakeStore{challenge: c}
	hub := NewHub(HubConfig{}, nil, zerolog.Nop())
	deps := session.Deps{
		Challenges:   store,
		Leaderboard:  store,
		Rounds:       store,
		Feed:         feed.NewLocalBus(16, nil, zerolog.Nop()),
		Logger:       zerolog.Nop(),
		TickInterval: 10 * time.Millisecond,
	}
	manager := NewManager(hub, deps, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		manager.Serve(ctx, conn, r.URL.Query().Get("c"), entity.PlayerRef{PlayerID: "p_me", Name: "Me"})
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &harness{store: store, hub: hub, server: server}
}

func (h *harness) dial(t *testing.T, challengeID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?c=" + challengeID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": msgType}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil пропускает сообщения других типов
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn) ErrorData {
	t.Helper()
	var data ErrorData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, TypeServerError).Data, &data))
	return data
}

// readAll собирает по одному сообщению каждого из типов в любом порядке
func readAll(t *testing.T, conn *websocket.Conn, types ...string) map[string]wireMessage {
	t.Helper()
	want := make(map[string]bool, len(types))
	for _, typ := range types {
		want[typ] = true
	}
	got := make(map[string]wireMessage, len(types))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(got) < len(want) {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %v", types)
		if want[msg.Type] {
			if _, seen := got[msg.Type]; !seen {
				got[msg.Type] = msg
			}
		}
	}
	return got
}

// expectClosed читает до закрытия соединения сервером
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection was not closed: %v", err)
		}
		return
	}
}

func playingChallenge() *entity.Challenge {
	startsAt := time.Now().Add(-time.Second)
	return &entity.Challenge{
		ID:              "c1",
		Word:            targetWord,
		Length:          4,
		Status:          entity.ChallengeStatusRunning,
		CurrentRound:    1,
		StartsAt:        &startsAt,
		MatchTargetWins: 5,
	}
}

func TestServe_SnapshotOnConnect(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	conn := h.dial(t, "c1")

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(readUntil(t, conn, TypeSessionSnapshot).Data, &snap))
	assert.Equal(t, session.PhasePlaying, snap.Phase)
	assert.Equal(t, "p_me", snap.Me.PlayerID)
	require.NotNil(t, snap.Challenge)
	assert.Equal(t, "c1", snap.Challenge.ID)
	assert.Empty(t, snap.Challenge.Word, "word is hidden while the round runs")
	assert.Equal(t, 4, snap.Board.Length)

	assert.Equal(t, 1, h.hub.ClientCount())
	assert.Equal(t, 1, h.hub.RoomSize("c1"))

	conn.Close()
	assert.Eventually(t, func() bool { return h.hub.ClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.hub.RoomCount())
}

func TestServe_GuessAndCloseRound(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	closed := *playingChallenge()
	closed.Status = entity.ChallengeStatusRoundOver
	winner := "p_me"
	closed.RoundWinnerPlayerID = &winner
	h.store.mu.Lock()
	h.store.outcome = service.Outcome{ClosedRound: true, Wins: 1, Challenge: &closed}
	h.store.mu.Unlock()

	conn := h.dial(t, "c1")
	readUntil(t, conn, TypeSessionSnapshot)

	send(t, conn, TypeGuessSubmit, GuessSubmitData{Guess: wrongWord})
	var res session.GuessResult
	require.NoError(t, json.Unmarshal(readUntil(t, conn, TypeGuessResult).Data, &res))
	assert.Equal(t, wrongWord, res.Guess.Word)
	assert.Len(t, res.Guess.Statuses, 4)
	assert.Equal(t, 5, res.Remaining)
	assert.False(t, res.Finished)

	// round:closed и guess:result приходят в любом порядке: отправку может сделать тик
	send(t, conn, TypeGuessSubmit, GuessSubmitData{Guess: targetWord})
	msgs := readAll(t, conn, TypeRoundClosed, TypeGuessResult)

	var rc session.RoundClosed
	require.NoError(t, json.Unmarshal(msgs[TypeRoundClosed].Data, &rc))
	assert.Equal(t, 1, rc.Round)
	assert.Equal(t, int64(1), rc.Wins)
	require.NotNil(t, rc.Challenge)
	assert.Equal(t, targetWord, rc.Challenge.Word, "word is revealed once the round is over")

	require.NoError(t, json.Unmarshal(msgs[TypeGuessResult].Data, &res))
	assert.True(t, res.Won)
	assert.True(t, res.Finished)

	submits := h.store.submitted()
	require.Len(t, submits, 1)
	assert.True(t, submits[0].Won)
	assert.Equal(t, 2, submits[0].Tries)
	assert.Equal(t, "p_me", submits[0].PlayerID)
}

func TestServe_GuessErrors(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	conn := h.dial(t, "c1")
	readUntil(t, conn, TypeSessionSnapshot)

	tests := []struct {
		guess string
		code  string
	}{
		{"كت", CodeIncompleteGuess},
		{"abcd", CodeInvalidLetter},
		{"كتابة", CodeLengthMismatch},
	}
	for _, tt := range tests {
		send(t, conn, TypeGuessSubmit, GuessSubmitData{Guess: tt.guess})
		assert.Equal(t, tt.code, readError(t, conn).Code, tt.guess)
	}

	send(t, conn, TypeGuessSubmit, nil)
	assert.Equal(t, CodeInvalidPayload, readError(t, conn).Code)
	assert.Empty(t, h.store.submitted())
}

func TestServe_GuessOutsidePlayingAndRateLimit(t *testing.T) {
	lobby := playingChallenge()
	lobby.Status = entity.ChallengeStatusLobby
	lobby.StartsAt = nil

	cfg := DefaultClientConfig()
	cfg.GuessRate = rate.Limit(0.001)
	cfg.GuessBurst = 1
	h := newHarness(t, lobby, cfg)
	conn := h.dial(t, "c1")
	readUntil(t, conn, TypeSessionSnapshot)

	send(t, conn, TypeGuessSubmit, GuessSubmitData{Guess: targetWord})
	assert.Equal(t, CodeNotPlaying, readError(t, conn).Code)

	send(t, conn, TypeGuessSubmit, GuessSubmitData{Guess: targetWord})
	assert.Equal(t, CodeRateLimited, readError(t, conn).Code)
}

func TestServe_HeartbeatResyncAndUnknownType(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	conn := h.dial(t, "c1")
	readUntil(t, conn, TypeSessionSnapshot)

	send(t, conn, "chat:message", nil)
	assert.Equal(t, CodeUnknownType, readError(t, conn).Code)

	// Неизвестный тип не закрывает соединение
	send(t, conn, TypeUserHeartbeat, nil)
	var hb HeartbeatData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, TypeServerHeartbeat).Data, &hb))
	assert.NotZero(t, hb.Timestamp)

	send(t, conn, TypeSessionResync, nil)
	readUntil(t, conn, TypeSessionSnapshot)
}

func TestServe_InvalidJSONClosesConnection(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	conn := h.dial(t, "c1")
	readUntil(t, conn, TypeSessionSnapshot)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, CodeInvalidPayload, readError(t, conn).Code)
	expectClosed(t, conn)
	assert.Eventually(t, func() bool { return h.hub.ClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestServe_UnknownChallenge(t *testing.T) {
	h := newHarness(t, playingChallenge(), DefaultClientConfig())
	h.store.mu.Lock()
	h.store.getErr = apperrors.ErrNotFound
	h.store.mu.Unlock()

	conn := h.dial(t, "missing")
	assert.Equal(t, CodeNotFound, readError(t, conn).Code)
	expectClosed(t, conn)
}

func TestClientConfigFrom(t *testing.T) {
	def := DefaultClientConfig()
	cfg := ClientConfigFrom(config.WebSocketConfig{PongWaitSec: 20})
	assert.Equal(t, 20*time.Second, cfg.PongWait)
	assert.Equal(t, 18*time.Second, cfg.PingInterval)
	assert.Equal(t, def.BufferSize, cfg.BufferSize)
	assert.Equal(t, def.GuessBurst, cfg.GuessBurst)
}
