// Package http exposes the backend surface the browser talks to: the token
// and room-registry endpoints, the notification hub and the media signaling
// websocket.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/auth"
	"github.com/teamcollab/huddle/internal/config"
	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/hub"
	"github.com/teamcollab/huddle/internal/rtc"
)

// ClientTokenMiddleware pins a long-lived browser id in a cookie; it names
// the websocket session, not the user.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, minter *auth.Minter, rooms *rtc.Manager, registry *rtc.Registry, relays *rtc.RelaySet, notifications *hub.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "transport.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/video/token", handleToken(minter))
	api.GET("/video/token/:identity", handleToken(minter))

	api.GET("/video/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})

	r.GET("/notificationHub", notifications.HandleWS)

	media := NewMediaController(minter, rooms, registry, relays, notifications, cfg.ReadLimit)
	api.GET("/ws/media", func(c *gin.Context) {
		media.HandleMedia(ctx, c)
	})

	return r
}

// handleToken issues a provider token. Requests with no identity segment get
// a server-assigned one; the effective identity is echoed back.
func handleToken(minter *auth.Minter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity domain.Identity
		if raw := c.Param("identity"); raw != "" {
			parsed, err := domain.ParseIdentity(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			identity = parsed
		}
		token, effective := minter.Mint(identity)
		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"identity": effective,
		})
	}
}
