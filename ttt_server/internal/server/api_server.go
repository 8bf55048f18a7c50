package server

import (
	"context"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	common "github.com/iselt/ttt-udp/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultGamesLimit = 50
	maxGamesLimit     = 500
)

// APIServer is the HTTP admin API of the game server.
type APIServer struct {
	server *Server
	router *gin.Engine
	logger *zap.Logger
}

// ServerStatus is returned by /api/v1/status.
type ServerStatus struct {
	Status         string  `json:"status"`
	ListenAddr     string  `json:"listen_addr"`
	ActiveSessions int     `json:"active_sessions"`
	TotalSessions  int     `json:"total_sessions"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	LedgerEnabled  bool    `json:"ledger_enabled"`
}

// NewAPIServer creates the admin API for server.
func NewAPIServer(server *Server) *APIServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	api := &APIServer{
		server: server,
		router: router,
		logger: server.Logger.Named("api"),
	}
	router.Use(api.requestLogger(), gin.Recovery())
	api.setupRoutes()

	return api
}

func (api *APIServer) setupRoutes() {
	v1 := api.router.Group("/api/v1")
	{
		v1.GET("/status", api.getServerStatus)

		v1.GET("/sessions", api.getSessions)
		v1.GET("/sessions/:addr", api.getSession)
		v1.DELETE("/sessions/:addr", api.requireAdmin(), api.terminateSession)

		v1.GET("/games", api.getGames)
	}

	api.router.GET("/health", api.healthCheck)
	api.router.GET("/metrics", gin.WrapH(api.server.Metrics.Handler()))
}

// Handler returns the router, for embedding and tests.
func (api *APIServer) Handler() http.Handler {
	return api.router
}

// Serve listens on the configured address until ctx is cancelled.
func (api *APIServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              api.server.Config.APIServer.ListenAddr,
		Handler:           api.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return common.ServeHTTP(ctx, srv, api.logger)
}

func (api *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		api.logger.Debug("API request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// requireAdmin checks a bearer token against the configured bcrypt hash.
func (api *APIServer) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := api.server.Config.APIServer.AdminTokenHash
		if hash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin token not configured"})
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (api *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ttt-server",
		"time":    time.Now().UTC(),
	})
}

func (api *APIServer) getServerStatus(c *gin.Context) {
	sessions := api.server.Sessions()
	active := 0
	for _, s := range sessions {
		if s.Status != StatusTerminated {
			active++
		}
	}

	c.JSON(http.StatusOK, ServerStatus{
		Status:         "running",
		ListenAddr:     api.server.LocalAddr().String(),
		ActiveSessions: active,
		TotalSessions:  len(sessions),
		UptimeSeconds:  api.server.Uptime().Seconds(),
		LedgerEnabled:  api.server.store != nil,
	})
}

func (api *APIServer) getSessions(c *gin.Context) {
	sessions := api.server.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (api *APIServer) getSession(c *gin.Context) {
	remote, ok := parseRemote(c)
	if !ok {
		return
	}
	snapshot, found := api.server.Session(remote)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (api *APIServer) terminateSession(c *gin.Context) {
	remote, ok := parseRemote(c)
	if !ok {
		return
	}
	if !api.server.Terminate(remote) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	api.logger.Info("Session terminated by admin", zap.Stringer("remote", remote))
	c.JSON(http.StatusOK, gin.H{
		"message": "session terminated",
		"remote":  remote.String(),
	})
}

func (api *APIServer) getGames(c *gin.Context) {
	if api.server.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game ledger disabled"})
		return
	}

	limit := defaultGamesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxGamesLimit)
	}

	games, err := api.server.store.Recent(c.Request.Context(), limit)
	if err != nil {
		api.logger.Warn("Failed to list games", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"total": len(games),
	})
}

func parseRemote(c *gin.Context) (netip.AddrPort, bool) {
	remote, err := netip.ParseAddrPort(c.Param("addr"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return netip.AddrPort{}, false
	}
	return common.NormalizeAddrPort(remote), true
}
