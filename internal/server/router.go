package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/accounts"
	"github.com/MarcoPoloResearchLab/sundae/internal/analytics"
	"github.com/MarcoPoloResearchLab/sundae/internal/apperr"
	"github.com/MarcoPoloResearchLab/sundae/internal/auth"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/monitoring"
	"github.com/MarcoPoloResearchLab/sundae/internal/pagecache"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/MarcoPoloResearchLab/sundae/internal/redirects"
	"github.com/MarcoPoloResearchLab/sundae/internal/render"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	creatorContextKey   = "sundae_creator"
	requestIDContextKey = "sundae_request_id"
	requestIDHeader     = "X-Request-ID"
	htmlContentType     = "text/html; charset=utf-8"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingProfilesService  = errors.New("profiles service dependency required")
	errMissingBlocksService    = errors.New("blocks service dependency required")
	errMissingLeadsService     = errors.New("leads service dependency required")
	errMissingAnalyticsService = errors.New("analytics service dependency required")
	errMissingAccountsService  = errors.New("accounts service dependency required")
	errMissingRedirects        = errors.New("redirect resolver dependency required")
	errMissingRenderer         = errors.New("renderer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSessionIssuer    = errors.New("session issuer dependency required when e2e login is enabled")
)

// Dependencies wires the stores and collaborators the HTTP surface needs.
type Dependencies struct {
	Profiles  *profiles.Service
	Blocks    *blocks.Service
	Leads     *leads.Service
	Analytics *analytics.Service
	Accounts  *accounts.Service
	Redirects *redirects.Resolver
	Renderer  *render.Renderer
	Cache     pagecache.Cache
	Sessions  *auth.SessionValidator
	Issuer    *auth.SessionIssuer
	Realtime  *RealtimeDispatcher
	// AppURL is the configured public origin; empty means the request origin is used.
	AppURL string
	// PublicBaseURL is the canonical origin advertised in robots.txt and the sitemap.
	PublicBaseURL     string
	AllowedOrigins    []string
	MetricsEnabled    bool
	E2EEnabled        bool
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Profiles == nil:
		return nil, errMissingProfilesService
	case deps.Blocks == nil:
		return nil, errMissingBlocksService
	case deps.Leads == nil:
		return nil, errMissingLeadsService
	case deps.Analytics == nil:
		return nil, errMissingAnalyticsService
	case deps.Accounts == nil:
		return nil, errMissingAccountsService
	case deps.Redirects == nil:
		return nil, errMissingRedirects
	case deps.Renderer == nil:
		return nil, errMissingRenderer
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.E2EEnabled && deps.Issuer == nil:
		return nil, errMissingSessionIssuer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := deps.Cache
	if cache == nil {
		cache = pagecache.NopCache{}
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		profiles:      deps.Profiles,
		blocks:        deps.Blocks,
		leads:         deps.Leads,
		analytics:     deps.Analytics,
		accounts:      deps.Accounts,
		redirects:     deps.Redirects,
		renderer:      deps.Renderer,
		cache:         cache,
		sessions:      deps.Sessions,
		issuer:        deps.Issuer,
		realtime:      realtime,
		appURL:        strings.TrimRight(strings.TrimSpace(deps.AppURL), "/"),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(handler.logRequest)
	if deps.MetricsEnabled {
		router.Use(monitoring.Middleware())
	}
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/robots.txt", handler.handleRobots)
	router.GET("/sitemap.xml", handler.handleSitemap)
	if deps.MetricsEnabled {
		router.GET("/metrics", monitoring.GinHandler())
	}
	router.GET("/demo", handler.handleDemo)
	router.GET("/r/:blockId", handler.handleRedirect)
	router.POST("/api/leads", handler.handleLeadCapture)
	router.POST("/api/analytics/view", handler.handleAnalyticsView)
	router.POST("/auth/logout", handler.handleLogout)
	if deps.E2EEnabled {
		router.POST("/auth/e2e", handler.handleE2ELogin)
	}

	studio := router.Group("/app")
	studio.Use(handler.authorizeRequest)
	studio.GET("/preview", handler.handlePreview)
	studio.GET("/api/editor", handler.handleEditor)
	studio.POST("/api/blocks", handler.handleCreateBlock)
	studio.POST("/api/blocks/:id", handler.handleUpdateBlock)
	studio.POST("/api/blocks/:id/toggle", handler.handleToggleBlock)
	studio.POST("/api/blocks/:id/move", handler.handleMoveBlock)
	studio.DELETE("/api/blocks/:id", handler.handleDeleteBlock)
	studio.POST("/api/settings/profile", handler.handleUpdateProfile)
	studio.DELETE("/api/settings/profile", handler.handleDeleteProfile)
	studio.POST("/api/settings/handle", handler.handleUpdateHandle)
	studio.POST("/api/settings/theme", handler.handleUpdateTheme)
	studio.POST("/api/settings/theme/preset", handler.handleApplyThemePreset)
	studio.GET("/api/leads", handler.handleListLeads)
	studio.GET("/api/leads/export.xlsx", handler.handleExportLeads)
	studio.GET("/api/analytics", handler.handleAnalyticsDashboard)
	studio.GET("/api/events", handler.handleEventStream)

	router.GET("/:handle", handler.handlePublicPage)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return router, nil
}

type httpHandler struct {
	profiles      *profiles.Service
	blocks        *blocks.Service
	leads         *leads.Service
	analytics     *analytics.Service
	accounts      *accounts.Service
	redirects     *redirects.Resolver
	renderer      *render.Renderer
	cache         pagecache.Cache
	sessions      *auth.SessionValidator
	issuer        *auth.SessionIssuer
	realtime      *RealtimeDispatcher
	appURL        string
	publicBaseURL string
	heartbeat     time.Duration
	logger        *zap.Logger
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *httpHandler) logRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
		zap.String("request_id", c.GetString(requestIDContextKey)),
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("errors", c.Errors.String()))
	}
	h.logger.Info("http request", fields...)
}

// authorizeRequest resolves the session cookie into the signed-in creator.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	creator, err := h.accounts.ResolveCreator(c.Request.Context(), claims)
	if err != nil {
		h.writeError(c, err)
		c.Abort()
		return
	}
	c.Set(creatorContextKey, creator)
	c.Next()
}

func creatorFrom(c *gin.Context) (accounts.Creator, bool) {
	value, ok := c.Get(creatorContextKey)
	if !ok {
		return accounts.Creator{}, false
	}
	creator, ok := value.(accounts.Creator)
	return creator, ok
}

// writeError maps a service error to its status and a {"error", "code"} body.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := statusForKind(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("code", apperr.CodeOf(err)),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.ReasonOf(err), "code": apperr.CodeOf(err)})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
