package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/middleware"
)

// RouterDeps - все, что нужно для сборки маршрутов
type RouterDeps struct {
	Challenges *ChallengeHandler
	WS         *WSHandler

	// RateLimiter == nil отключает ограничение запросов
	RateLimiter *middleware.RateLimiter
	RateLimit   middleware.RateLimitConfig

	AllowedOrigins []string

	// MetricsHandler == nil отключает /metrics
	MetricsHandler http.Handler
	MetricsPath    string

	// Health проверяет зависимости для /health; nil - всегда ok
	Health func(ctx context.Context) error

	Logger zerolog.Logger
}

// NewRouter собирает gin.Engine со всеми маршрутами API
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(d.Logger), middleware.Recovery(d.Logger))

	if len(d.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  d.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HostKeyHeader},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(d.MetricsHandler))
	}

	limited := func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		limited = d.RateLimiter.Limit(d.RateLimit)
	}

	h := d.Challenges
	api := router.Group("/api")
	{
		challenges := api.Group("/challenges")
		{
			challenges.POST("", limited, h.CreateChallenge)

			withID := challenges.Group("/:id", middleware.ExtractChallengeID("id"))
			{
				withID.GET("", h.GetChallenge)
				withID.POST("/join", limited, h.JoinChallenge)
				withID.POST("/start", h.StartRace)
				withID.POST("/next-round", h.NextRound)
				withID.GET("/players", h.ListPlayers)
				withID.GET("/rounds/:round/results", middleware.ExtractPositiveIntParam("round", middleware.RoundKey), h.RoundResults)
				withID.GET("/standings", h.Standings)
				withID.GET("/standings/export", h.ExportStandings)
			}
		}

		api.GET("/words/random", h.RandomWord)
	}

	if d.WS != nil {
		router.GET("/ws", d.WS.HandleConnection)
	}

	return router
}
