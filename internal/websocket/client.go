package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yourusername/buildle-api/internal/config"
	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/metrics"
	"github.com/yourusername/buildle-api/internal/service/session"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента.
	pongWait = 30 * time.Second

	// Максимальный размер входящего сообщения
	maxMessageSize = 1024

	defaultClientBufferSize = 64

	// Догадок в секунду на соединение
	defaultGuessRate  = 4
	defaultGuessBurst = 6

	// Максимальное количество предупреждений о переполнении буфера до отключения
	maxBufferWarnings = 3
)

// ClientConfig содержит настройки для клиента
type ClientConfig struct {
	// BufferSize определяет размер буфера канала отправки сообщений
	BufferSize int

	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// GuessRate и GuessBurst ограничивают поток guess:submit
	GuessRate  rate.Limit
	GuessBurst int
}

// DefaultClientConfig возвращает конфигурацию клиента по умолчанию
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BufferSize:     defaultClientBufferSize,
		PingInterval:   (pongWait * 9) / 10,
		PongWait:       pongWait,
		WriteWait:      writeWait,
		MaxMessageSize: maxMessageSize,
		GuessRate:      defaultGuessRate,
		GuessBurst:     defaultGuessBurst,
	}
}

// ClientConfigFrom собирает ClientConfig из настроек приложения; нулевые поля
// берутся из DefaultClientConfig
func ClientConfigFrom(cfg config.WebSocketConfig) ClientConfig {
	out := DefaultClientConfig()
	if cfg.SendBuffer > 0 {
		out.BufferSize = cfg.SendBuffer
	}
	if cfg.MaxMessageSize > 0 {
		out.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.WriteWaitSec > 0 {
		out.WriteWait = time.Duration(cfg.WriteWaitSec) * time.Second
	}
	if cfg.PongWaitSec > 0 {
		out.PongWait = time.Duration(cfg.PongWaitSec) * time.Second
		out.PingInterval = (out.PongWait * 9) / 10
	}
	if cfg.GuessRate > 0 {
		out.GuessRate = rate.Limit(cfg.GuessRate)
	}
	if cfg.GuessBurst > 0 {
		out.GuessBurst = cfg.GuessBurst
	}
	return out
}

// outgoingMessage - конверт исходящего сообщения
type outgoingMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client является посредником между WebSocket соединением и сессией игрока.
type Client struct {
	PlayerID    string
	Name        string
	ChallengeID string

	// Уникальный ID для каждого соединения
	ConnectionID string

	conn *websocket.Conn
	send chan []byte

	// sendMu защищает send от записи после закрытия
	sendMu     sync.RWMutex
	sendClosed atomic.Bool

	// Unix-время последней активности в наносекундах
	lastActivity atomic.Int64

	bufferWarnings atomic.Int32

	limiter *rate.Limiter
	session *session.Session
	cfg     ClientConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewClient создает клиента для соединения игрока me
func NewClient(conn *websocket.Conn, challengeID string, me entity.PlayerRef, cfg ClientConfig, m *metrics.Metrics, logger zerolog.Logger) *Client {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultClientBufferSize
	}
	if cfg.GuessRate <= 0 || cfg.GuessBurst <= 0 {
		cfg.GuessRate, cfg.GuessBurst = defaultGuessRate, defaultGuessBurst
	}
	if cfg.PingInterval <= 0 || cfg.PongWait <= 0 || cfg.WriteWait <= 0 || cfg.MaxMessageSize <= 0 {
		def := DefaultClientConfig()
		cfg.PingInterval, cfg.PongWait, cfg.WriteWait, cfg.MaxMessageSize = def.PingInterval, def.PongWait, def.WriteWait, def.MaxMessageSize
	}
	connectionID := uuid.New().String()
	c := &Client{
		PlayerID:     me.PlayerID,
		Name:         me.Name,
		ChallengeID:  challengeID,
		ConnectionID: connectionID,
		conn:         conn,
		send:         make(chan []byte, cfg.BufferSize),
		limiter:      rate.NewLimiter(cfg.GuessRate, cfg.GuessBurst),
		cfg:          cfg,
		metrics:      m,
		logger: logger.With().
			Str("component", "ws_client").
			Str("challenge_id", challengeID).
			Str("player_id", me.PlayerID).
			Str("conn_id", connectionID).
			Logger(),
	}
	c.touch()
	return c
}

// Session возвращает сессию, обслуживаемую клиентом
func (c *Client) Session() *session.Session {
	return c.session
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity возвращает время последнего сообщения или pong от клиента
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// AllowGuess расходует токен лимитера догадок
func (c *Client) AllowGuess() bool {
	return c.limiter.Allow()
}

// Emit переводит событие сессии в сообщение протокола
func (c *Client) Emit(e session.Event) {
	switch e.Type {
	case session.EventSnapshot:
		c.SendJSON(TypeSessionSnapshot, e.Payload)
	case session.EventRoundClosed:
		c.SendJSON(TypeRoundClosed, e.Payload)
	case session.EventError:
		if p, ok := e.Payload.(session.ErrorPayload); ok {
			c.SendError(p.Code, p.Message)
			return
		}
		c.SendError(CodeInternal, fmt.Sprint(e.Payload))
	default:
		c.logger.Warn().Str("event", string(e.Type)).Msg("unknown session event")
	}
}

// SendError отправляет server:error
func (c *Client) SendError(code, message string) bool {
	return c.SendJSON(TypeServerError, ErrorData{Code: code, Message: message})
}

// SendJSON ставит сообщение в очередь отправки. Не блокируется: при полном
// буфере сообщение отбрасывается, после maxBufferWarnings подряд соединение закрывается.
func (c *Client) SendJSON(msgType string, data interface{}) bool {
	payload, err := json.Marshal(outgoingMessage{Type: msgType, Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("type", msgType).Msg("failed to marshal message")
		return false
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed.Load() {
		return false
	}

	select {
	case c.send <- payload:
		c.bufferWarnings.Store(0)
		c.metrics.Message("out", msgType)
		return true
	default:
		warnings := c.bufferWarnings.Add(1)
		c.logger.Warn().Int32("warnings", warnings).Str("type", msgType).Msg("send buffer full, message dropped")
		if warnings >= maxBufferWarnings {
			c.logger.Warn().Msg("client too slow, closing connection")
			c.conn.Close()
		}
		return false
	}
}

// CloseSend закрывает канал отправки; writePump отправит close-фрейм
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
	}
}

// MessageHandler обрабатывает одно входящее сообщение. Ошибка закрывает соединение.
type MessageHandler func(ctx context.Context, message []byte, client *Client) error

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(ctx context.Context, handler MessageHandler) {
	// Соединение закрывает writePump после отправки очереди
	defer c.logger.Debug().Msg("read pump stopped")

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		if err := safeHandleMessage(ctx, message, c, handler); err != nil {
			c.logger.Warn().Err(err).Msg("handler error, closing connection")
			return
		}
	}
}

// safeHandleMessage - обертка для вызова обработчика с recover
func safeHandleMessage(ctx context.Context, message []byte, client *Client, handler MessageHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			client.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered in message handler")
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	if handler == nil {
		return nil
	}
	return handler(ctx, message, client)
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug().Msg("write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				// Канал закрыт сервером
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
