package http

import (
	"context"
	"net/http"

	"github.com/dkeye/RoboCast/internal/adapters/signal"
	"github.com/dkeye/RoboCast/internal/app/orch"
	"github.com/dkeye/RoboCast/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a stable per-browser token in the session.
// It only labels connections in logs; session ids are per connection.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type BroadcasterDTO struct {
	ID           string `json:"id"`
	RegisteredAt int64  `json:"registered_at"`
}

// SetupRouter wires HTTP routes (REST + WS) with orchestrator and transport.
func SetupRouter(ctx context.Context, cfg *config.Config, orch *orch.Orchestrator, metricsHandler http.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RoboCastSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": orch.Registry.Count()})
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(orch, cfg)
	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	// GET /api/broadcasters: registry snapshot
	api.GET("/broadcasters", func(c *gin.Context) {
		snap := orch.Registry.Broadcasters()
		out := make([]BroadcasterDTO, 0, len(snap))
		for _, p := range snap {
			out = append(out, BroadcasterDTO{ID: string(p.ID), RegisteredAt: p.RegisteredAt.Unix()})
		}
		c.JSON(http.StatusOK, gin.H{"broadcasters": out})
	})

	return r
}
