package handler

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"edge-gatekeeper/internal/domain"
	"edge-gatekeeper/internal/middleware"
)

const serviceName = "Edge Gatekeeper"

// StatsProvider expõe os contadores do gatekeeper
type StatsProvider interface {
	Stats() domain.GatekeeperStats
}

// StorageStatsProvider expõe estatísticas do storage de rate limit
type StorageStatsProvider interface {
	GetStats() map[string]interface{}
}

// Handlers contém os handlers operacionais (fora do prefixo da API)
type Handlers struct {
	service   domain.RateLimiterService
	stats     StatsProvider
	storage   StorageStatsProvider
	logger    domain.Logger
	startTime time.Time

	adminToken string
}

// NewHandlers cria uma nova instância dos handlers. stats e storage são opcionais.
func NewHandlers(
	service domain.RateLimiterService,
	stats StatsProvider,
	storage StorageStatsProvider,
	logger domain.Logger,
) *Handlers {
	return &Handlers{
		service:   service,
		stats:     stats,
		storage:   storage,
		logger:    logger,
		startTime: time.Now(),
	}
}

// WithAdminToken define o token exigido nas rotas /admin. Vazio recusa todas as chamadas.
func (h *Handlers) WithAdminToken(token string) *Handlers {
	h.adminToken = token
	return h
}

// SetupRoutes configura as rotas operacionais
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", h.MetricsHandler)

	admin := router.Group("/admin", middleware.AdminAuth(h.adminToken, h.logger))
	{
		admin.GET("/status", h.AdminStatusHandler)
		admin.POST("/reset", h.AdminResetHandler)
	}
}

// HealthHandler implementa health check com verificação do storage
func (h *Handlers) HealthHandler(c *gin.Context) {
	response := gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	if h.service != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.service.Health(ctx); err != nil {
			h.logError(c, "Storage health check failed", err, nil)
			response["status"] = "unhealthy"
			response["storage"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response["storage"] = "ok"
	}

	c.JSON(http.StatusOK, response)
}

// MetricsHandler implementa endpoint de métricas do sistema
func (h *Handlers) MetricsHandler(c *gin.Context) {
	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := gin.H{
		"service":        serviceName,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"system": gin.H{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": formatBytes(m.Alloc),
			"memory_total": formatBytes(m.TotalAlloc),
			"memory_sys":   formatBytes(m.Sys),
			"gc_runs":      m.NumGC,
		},
	}

	if h.stats != nil {
		response["gatekeeper"] = h.stats.Stats()
	}
	if h.storage != nil {
		response["storage"] = h.storage.GetStats()
	}

	c.JSON(http.StatusOK, response)
}

// AdminStatusHandler retorna o status de rate limit de uma identidade
func (h *Handlers) AdminStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	identity := strings.TrimSpace(c.Query("identity"))

	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "identity parameter is required",
		})
		return
	}

	status, err := h.service.GetStatus(ctx, identity)
	if err != nil {
		h.logError(c, "Failed to get rate limiter status", err, map[string]interface{}{
			"identity": identity,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to retrieve rate limiter status",
		})
		return
	}

	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No active rate limit window for identity",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity":     status.Identity,
		"limit":        status.Limit,
		"current":      status.Count,
		"remaining":    status.Remaining,
		"window_start": status.WindowStart.Unix(),
		"reset_time":   status.ResetTime.Unix(),
		"exhausted":    status.Exhausted,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// AdminResetRequest representa o corpo da requisição para reset
type AdminResetRequest struct {
	Identity string `json:"identity" binding:"required"`
}

// AdminResetHandler limpa o registro de uma identidade
func (h *Handlers) AdminResetHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req AdminResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "identity cannot be empty",
		})
		return
	}

	if err := h.service.Reset(ctx, req.Identity); err != nil {
		h.logError(c, "Failed to reset rate limiter", err, map[string]interface{}{
			"identity": req.Identity,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to reset rate limiter",
		})
		return
	}

	if h.logger != nil {
		h.logger.WithContext(ctx).Info("Admin reset executed", map[string]interface{}{
			"identity": req.Identity,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Rate limiter reset successfully",
		"identity":  req.Identity,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// logError registra erros apenas se o logger estiver configurado
func (h *Handlers) logError(c *gin.Context, msg string, err error, fields map[string]interface{}) {
	if h.logger == nil {
		return
	}
	h.logger.WithContext(c.Request.Context()).Error(msg, err, fields)
}

// formatBytes formata bytes em formato legível
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + "KMGTPE"[exp:exp+1] + "B"
}
