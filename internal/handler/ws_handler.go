package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/domain/entity"
	"github.com/yourusername/buildle-api/internal/websocket"
	"github.com/yourusername/buildle-api/pkg/auth"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	manager  *websocket.Manager
	tickets  *auth.TicketService
	upgrader gorillaws.Upgrader
	logger   zerolog.Logger
}

// NewWSHandler создает новый обработчик WebSocket.
// allowedOrigins - список Origin браузерных клиентов; пустой Origin (не браузер) разрешен всегда.
func NewWSHandler(manager *websocket.Manager, tickets *auth.TicketService, allowedOrigins []string, logger zerolog.Logger) *WSHandler {
	h := &WSHandler{
		manager: manager,
		tickets: tickets,
		logger:  logger.With().Str("component", "ws_handler").Logger(),
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	h.upgrader = gorillaws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			h.logger.Warn().Str("origin", origin).Msg("rejected websocket origin")
			return false
		},
	}
	return h
}

// HandleConnection проверяет тикет и обслуживает соединение до его закрытия
// GET /ws?ticket=
func (h *WSHandler) HandleConnection(c *gin.Context) {
	// НЕ логируем тикет - это секретные данные аутентификации
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter"})
		return
	}

	claims, err := h.tickets.Parse(ticket)
	if err != nil {
		h.logger.Info().Err(err).Msg("invalid websocket ticket")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.logger.Debug().
		Str("challenge_id", claims.ChallengeID).
		Str("player_id", claims.PlayerID).
		Msg("websocket connected")

	h.manager.Serve(c.Request.Context(), conn, claims.ChallengeID, entity.PlayerRef{
		PlayerID: claims.PlayerID,
		Name:     claims.Name,
	})
}
