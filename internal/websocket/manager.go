package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/game"
	"github.com/yourusername/buildle-api/internal/metrics"
	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
	"github.com/yourusername/buildle-api/internal/service/session"
)

// Event представляет структуру входящего WebSocket-сообщения
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventHandler обрабатывает данные сообщения одного типа.
// Ошибка считается фатальной и закрывает соединение.
type EventHandler func(ctx context.Context, data json.RawMessage, client *Client) error

// Manager обслуживает WebSocket-соединения игроков
type Manager struct {
	hub       *Hub
	deps      session.Deps
	clientCfg ClientConfig
	handlers  map[string]EventHandler
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewManager создает менеджер со стандартными обработчиками протокола
func NewManager(hub *Hub, deps session.Deps, clientCfg ClientConfig, logger zerolog.Logger) *Manager {
	m := &Manager{
		hub:       hub,
		deps:      deps,
		clientCfg: clientCfg,
		handlers:  make(map[string]EventHandler),
		metrics:   deps.Metrics,
		logger:    logger.With().Str("component", "ws_manager").Logger(),
	}
	m.RegisterHandler(TypeGuessSubmit, m.handleGuessSubmit)
	m.RegisterHandler(TypeUserHeartbeat, m.handleHeartbeat)
	m.RegisterHandler(TypeSessionResync, m.handleResync)
	return m
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler EventHandler) {
	m.handlers[eventType] = handler
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(ctx context.Context, message []byte, client *Client) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		client.SendError(CodeInvalidPayload, "invalid JSON format")
		return fmt.Errorf("unmarshal message: %w", err)
	}
	m.metrics.Message("in", event.Type)

	handler, ok := m.handlers[event.Type]
	if !ok {
		client.SendError(CodeUnknownType, fmt.Sprintf("unknown message type: %s", event.Type))
		return nil
	}
	return handler(ctx, event.Data, client)
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Этот метод НЕ закрывает соединение.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	if !client.SendError(code, message) {
		m.logger.Debug().Str("conn_id", client.ConnectionID).Str("code", code).Msg("error not delivered")
	}
}

func (m *Manager) handleGuessSubmit(ctx context.Context, data json.RawMessage, client *Client) error {
	if !client.AllowGuess() {
		m.metrics.GuessRejected("rate")
		m.SendErrorToClient(client, CodeRateLimited, "too many guesses")
		return nil
	}

	var in GuessSubmitData
	if len(data) == 0 || json.Unmarshal(data, &in) != nil {
		m.SendErrorToClient(client, CodeInvalidPayload, "guess:submit expects {\"guess\": string}")
		return nil
	}

	res, err := client.Session().Guess(ctx, in.Guess)
	if err != nil {
		code, msg := guessErrorCode(err)
		m.SendErrorToClient(client, code, msg)
		return nil
	}
	client.SendJSON(TypeGuessResult, res)
	return nil
}

func (m *Manager) handleHeartbeat(_ context.Context, _ json.RawMessage, client *Client) error {
	client.SendJSON(TypeServerHeartbeat, HeartbeatData{Timestamp: time.Now().UnixMilli()})
	return nil
}

func (m *Manager) handleResync(_ context.Context, _ json.RawMessage, client *Client) error {
	client.Session().Resync()
	return nil
}

func guessErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, session.ErrNotPlaying):
		return CodeNotPlaying, "round is not being played"
	case errors.Is(err, game.ErrIncompleteGuess):
		return CodeIncompleteGuess, "guess is incomplete"
	case errors.Is(err, game.ErrInvalidLetter):
		return CodeInvalidLetter, "guess contains an invalid letter"
	case errors.Is(err, game.ErrLengthMismatch):
		return CodeLengthMismatch, "guess length does not match the word"
	case errors.Is(err, game.ErrBoardFinished):
		return CodeBoardFinished, "board is already finished"
	default:
		return CodeInternal, "failed to process guess"
	}
}

// Serve обслуживает соединение игрока me до его закрытия или отмены ctx.
// Блокируется; соединение закрывается при выходе.
func (m *Manager) Serve(ctx context.Context, conn *websocket.Conn, challengeID string, me entity.PlayerRef) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := NewClient(conn, challengeID, me, m.clientCfg, m.metrics, m.logger)
	client.session = session.New(m.deps, challengeID, me, client)

	m.hub.Register(client)
	defer m.hub.Unregister(client)

	writeDone := make(chan struct{})
	go func() {
		client.writePump()
		close(writeDone)
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.session.Run(ctx)
	}()

	readDone := make(chan struct{})
	go func() {
		client.readPump(ctx, m.HandleMessage)
		close(readDone)
	}()

	select {
	case err := <-runErr:
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			client.SendError(CodeNotFound, "challenge not found")
		case err != nil:
			client.logger.Error().Err(err).Msg("session stopped")
			client.SendError(CodeInternal, "session failed")
		}
		// writePump допишет очередь и отправит close-фрейм
		client.CloseSend()
		<-readDone
	case <-readDone:
		cancel()
		<-runErr
		client.CloseSend()
	}
	<-writeDone
	conn.Close()
	client.logger.Debug().Msg("connection served")
}
