// Package http is the gin surface of the service: session lifecycle
// endpoints, the signaling WebSocket and a few read-only helpers.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/skillcall/internal/adapters/rtc"
	"github.com/dkeye/skillcall/internal/adapters/signal"
	"github.com/dkeye/skillcall/internal/app"
	"github.com/dkeye/skillcall/internal/app/lifecycle"
	"github.com/dkeye/skillcall/internal/auth"
	"github.com/dkeye/skillcall/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the router hands requests to.
type Deps struct {
	Config   *config.Config
	Verifier *auth.Verifier
	Sessions *lifecycle.Manager
	Relay    *app.Relay
	Signal   *signal.SignalWSController
}

func SetupRouter(ctx context.Context, d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("SkillCallSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{
		sessions:   d.Sessions,
		relay:      d.Relay,
		signal:     d.Signal,
		iceServers: rtc.ClientICEServers(rtc.WebRTCConfig(cfg.ICEServers)),
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	api.GET("/ice-servers", h.iceServersList)
	if cfg.Mode == "debug" {
		api.GET("/rooms", h.roomsList)
	}

	authed := api.Group("", AuthMiddleware(d.Verifier))

	s := authed.Group("/sessions")
	s.POST("/request", h.createRequest)
	s.GET("/pending-count", h.pendingCount)
	s.GET("/history", h.history)
	s.GET("/:id", h.getSession)
	s.POST("/:id/accept", h.accept)
	s.POST("/:id/decline", h.decline)
	s.POST("/:id/cancel", h.cancel)
	s.POST("/:id/end", h.end)
	s.POST("/:id/rating", h.rate)

	authed.GET("/signaling/ws/:room", func(c *gin.Context) {
		h.signalWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
