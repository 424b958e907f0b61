package websocket

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/metrics"
)

// HubConfig содержит настройки хаба
type HubConfig struct {
	// SweepInterval - период проверки неактивных клиентов; 0 отключает проверку
	SweepInterval time.Duration

	// IdleTimeout - сколько клиент может молчать (без сообщений и pong)
	IdleTimeout time.Duration
}

// Hub хранит подключенных клиентов, сгруппированных по челленджам.
// Рассылкой хаб не занимается: каждая сессия сама подписана на feed.Bus.
type Hub struct {
	// InstanceID отличает экземпляры сервера в логах
	InstanceID string

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	cfg       HubConfig
	scheduler gocron.Scheduler
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewHub создает хаб
func NewHub(cfg HubConfig, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	instanceID := uuid.New().String()
	return &Hub{
		InstanceID: instanceID,
		rooms:      make(map[string]map[*Client]struct{}),
		cfg:        cfg,
		metrics:    m,
		logger:     logger.With().Str("component", "ws_hub").Str("instance_id", instanceID).Logger(),
	}
}

// Start запускает периодическую очистку неактивных клиентов
func (h *Hub) Start() error {
	if h.cfg.SweepInterval <= 0 || h.cfg.IdleTimeout <= 0 {
		h.logger.Info().Msg("idle sweep disabled")
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(h.cfg.SweepInterval),
		gocron.NewTask(func() {
			if n := h.SweepIdle(time.Now()); n > 0 {
				h.logger.Info().Int("closed", n).Msg("idle clients closed")
			}
		}),
	)
	if err != nil {
		return err
	}
	sched.Start()
	h.scheduler = sched

	h.logger.Info().
		Dur("interval", h.cfg.SweepInterval).
		Dur("idle_timeout", h.cfg.IdleTimeout).
		Msg("idle sweep started")
	return nil
}

// Shutdown останавливает очистку и закрывает все соединения
func (h *Hub) Shutdown() {
	if h.scheduler != nil {
		if err := h.scheduler.Shutdown(); err != nil {
			h.logger.Warn().Err(err).Msg("scheduler shutdown")
		}
	}

	h.mu.RLock()
	clients := make([]*Client, 0)
	for _, room := range h.rooms {
		for c := range room {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	// Закрытие send отправит close-фрейм, Serve снимет клиента с учета
	for _, c := range clients {
		c.CloseSend()
	}
	h.logger.Info().Int("clients", len(clients)).Msg("hub shut down")
}

// Register добавляет клиента в комнату его челленджа
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.ChallengeID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.ChallengeID] = room
	}
	room[c] = struct{}{}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.metrics.SetRooms(rooms)
	h.logger.Debug().
		Str("challenge_id", c.ChallengeID).
		Str("player_id", c.PlayerID).
		Str("conn_id", c.ConnectionID).
		Msg("client registered")
}

// Unregister удаляет клиента; пустая комната удаляется. Повторный вызов безопасен.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.ChallengeID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.ChallengeID)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.ClientDisconnected()
	h.metrics.SetRooms(rooms)
	h.logger.Debug().
		Str("challenge_id", c.ChallengeID).
		Str("conn_id", c.ConnectionID).
		Msg("client unregistered")
}

// ClientCount возвращает общее число клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomCount возвращает число челленджей с подключенными клиентами
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSize возвращает число клиентов челленджа
func (h *Hub) RoomSize(challengeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[challengeID])
}

// SweepIdle закрывает соединения клиентов, молчащих дольше IdleTimeout.
// Возвращает число закрытых.
func (h *Hub) SweepIdle(now time.Time) int {
	if h.cfg.IdleTimeout <= 0 {
		return 0
	}

	h.mu.RLock()
	idle := make([]*Client, 0)
	for _, room := range h.rooms {
		for c := range room {
			if now.Sub(c.LastActivity()) > h.cfg.IdleTimeout {
				idle = append(idle, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range idle {
		c.logger.Info().Time("last_activity", c.LastActivity()).Msg("closing idle client")
		// readPump получит ошибку чтения и завершит Serve
		c.conn.Close()
	}
	return len(idle)
}
