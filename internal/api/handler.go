package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/refdata"
	"thirteen-shop/internal/service"
	"thirteen-shop/internal/usage"
	"thirteen-shop/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// UsageStore records client-side emote usage
type UsageStore interface {
	RecordEmoteUse(ctx context.Context, profileID, triggerCode string) error
	MostUsedEmote(ctx context.Context, profileID string) (usage.EmoteUsage, bool, error)
	Stats(ctx context.Context, profileID string, limit int) ([]usage.EmoteUsage, error)
}

// Services are the shop components served over HTTP
type Services struct {
	Catalog    *catalog.Catalog
	RefData    *refdata.Cache
	Profiles   *service.ProfileCache
	Controller *service.PurchaseController
	Ads        *service.AdRewards
	AdBridge   *AdBridge
	Boosters   *service.BoosterService
	Shell      *modal.Shell
	Usage      UsageStore
	Ready      map[string]Pinger
	TickEvery  time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	if svc.TickEvery <= 0 {
		svc.TickEvery = time.Second
	}
	return &Handler{
		svc:    svc,
		logger: util.Component("api"),
		now:    time.Now,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog", h.getCatalog)
		v1.GET("/profile", h.getProfile)
		v1.POST("/profile/refresh", h.refreshProfile)

		v1.GET("/refdata/emotes", h.listEmotes)
		v1.GET("/refdata/finishers", h.listFinishers)
		v1.GET("/refdata/chat-presets", h.listChatPresets)
		v1.GET("/refdata/state", h.refDataState)

		v1.GET("/purchase", h.purchaseState)
		v1.POST("/purchase/select", h.selectItem)
		v1.POST("/purchase/confirm", h.confirmPurchase)
		v1.POST("/purchase/execute", h.executePurchase)
		v1.POST("/purchase/cancel", h.cancelPurchase)

		v1.GET("/inventory", h.getInventory)
		v1.POST("/boosters/:id/activate", h.activateBooster)
		v1.GET("/boosters/:id/ws", h.streamBooster)

		v1.GET("/rewards/weekly", h.weeklyProgress)
		v1.GET("/ads/:placement", h.adStatus)
		v1.POST("/ads/:placement/watch", h.watchAd)
		v1.POST("/ads/:placement/loaded", h.adLoaded)
		v1.POST("/ads/:placement/reward", h.adReward)
		v1.POST("/ads/:placement/closed", h.adClosed)
		v1.GET("/ads/:placement/ws", h.streamAdState)

		v1.GET("/shell", h.getShell)
		v1.POST("/shell/dismiss", h.dismissModal)
		v1.GET("/toasts", h.listToasts)

		v1.POST("/emotes/:trigger/use", h.useEmote)
		v1.GET("/emotes/stats", h.emoteStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.svc.Ready {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"failing": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   h.now().Unix(),
	})
}

// writeError maps service errors to HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var partial *service.PartialFailureError
	switch {
	case errors.As(err, &partial):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrUnknownItem),
		errors.Is(err, service.ErrNotInInventory):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNoPendingPurchase),
		errors.Is(err, service.ErrNotForSale),
		errors.Is(err, service.ErrVoucherUnavailable),
		errors.Is(err, errNoAdShowing):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrPurchaseInFlight),
		errors.Is(err, service.ErrControllerBusy),
		errors.Is(err, service.ErrAlreadyOwned),
		errors.Is(err, service.ErrAdAlreadyClaimed),
		errors.Is(err, service.ErrAdClosedEarly):
		status = http.StatusConflict
	case errors.Is(err, service.ErrAdUnavailable):
		status = http.StatusTooManyRequests
	case errors.Is(err, service.ErrPurchaseRejected),
		errors.Is(err, service.ErrClaimRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrClaimTimeout),
		refdata.IsAborted(err):
		status = http.StatusGatewayTimeout
	case errors.Is(err, service.ErrNoProfile):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
