package zentrobot

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPathHealth         = "/health"
	apiPrefix             = "/api"
	apiPathTickets        = "/tickets"
	apiPathReactionRoles  = "/reaction-roles"
	apiPathGiveaways      = "/giveaways"
	apiPathTicketsCleanup = "/tickets/cleanup"
)

// API is the headless operational HTTP surface: health, read-only views
// of the registries, and the cleanup sweep. Every /api route requires the
// static bearer token.
type API struct {
	bot        *Bot
	config     *APIConfig
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

func newAPI(bot *Bot, config *APIConfig) *API {
	if config == nil {
		config = DefaultConfig().API
	}
	logger := slog.New(newLogHandler("api", config.LogLevel))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		bot:    bot,
		config: config,
		logger: logger,
		engine: r,
		httpServer: &http.Server{
			Addr:              config.Listen,
			Handler:           r,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = DefaultCORSAllowMethods
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type"}
	corsConfig.MaxAge = DefaultAPICORSMaxAge
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}

	r.Use(
		gin.Recovery(),
		api.loggingMiddleware(),
		cors.New(corsConfig),
	)

	r.GET(apiPathHealth, api.healthCheck)

	protected := r.Group(apiPrefix)
	protected.Use(api.authMiddleware())
	protected.GET(apiPathTickets, api.getTickets)
	protected.GET(apiPathReactionRoles, api.getReactionRoles)
	protected.GET(apiPathGiveaways, api.getGiveaways)
	protected.POST(apiPathTicketsCleanup, api.cleanupTickets)

	return api
}

// Serve runs the HTTP server until the context is canceled, then shuts
// it down gracefully.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, defaultListenNetwork, a.config.Listen)
		if err != nil {
			return err
		}
		a.listener = ln
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), DefaultShutdownTimeout,
		)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error shutting down api server", tint.Err(err))
		}
	}()

	a.logger.Info("api listening", "addr", a.config.Listen)
	return a.httpServer.Serve(a.listener)
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", float64(time.Since(start).Nanoseconds())/1e6,
			"client_ip", c.ClientIP(),
		)
	}
}

// authMiddleware requires the configured static bearer token. A missing
// token in the config fails closed.
func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := a.config.Token
		if token == "" {
			c.AbortWithStatusJSON(
				http.StatusServiceUnavailable,
				gin.H{"error": "api token not configured"},
			)
			return
		}
		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				gin.H{"error": "unauthorized"},
			)
			return
		}
		c.Next()
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.bot.startedAt).String(),
			"gateway": a.bot.discord.connected.Load(),
		},
	)
}

func (a *API) getTickets(c *gin.Context) {
	ctx := c.Request.Context()

	var open []OpenTicket
	if err := a.bot.db.WithContext(ctx).Order("created_at").Find(&open).Error; err != nil {
		a.logger.Error("error listing open tickets", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store error"})
		return
	}
	var zentro []ZentroTicket
	if err := a.bot.db.WithContext(ctx).Order("created_at").Find(&zentro).Error; err != nil {
		a.logger.Error("error listing zentro tickets", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store error"})
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"open_tickets":   open,
			"zentro_tickets": zentro,
		},
	)
}

func (a *API) getReactionRoles(c *gin.Context) {
	mappings, err := a.bot.reactionRoles.ListMappings(
		c.Request.Context(), a.bot.config.Discord.GuildID,
	)
	if err != nil {
		a.logger.Error("error listing reaction roles", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reaction_roles": mappings})
}

func (a *API) getGiveaways(c *gin.Context) {
	giveaways, err := a.bot.giveaways.ListActive(
		c.Request.Context(), a.bot.config.Discord.GuildID,
	)
	if err != nil {
		a.logger.Error("error listing giveaways", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"giveaways": giveaways})
}

func (a *API) cleanupTickets(c *gin.Context) {
	reports, err := a.bot.tickets.CleanupOrphans(c.Request.Context())
	if err != nil {
		a.logger.Error("cleanup sweep failed", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"removed": len(reports),
			"reports": reports,
		},
	)
}
