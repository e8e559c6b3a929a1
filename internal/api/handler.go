package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"pricing-service/internal/cache"
	"pricing-service/internal/models"
	"pricing-service/internal/progress"
	"pricing-service/internal/service"
	"pricing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	pricingService *service.PricingService
	adminService   *service.AdminService
	syncService    *service.CatalogSyncService
	cache          *cache.Cache
	publisher      *progress.Publisher
	streamTimeout  time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(
	pricingService *service.PricingService,
	adminService *service.AdminService,
	syncService *service.CatalogSyncService,
	cache *cache.Cache,
	publisher *progress.Publisher,
	streamTimeout time.Duration,
) *Handler {
	return &Handler{
		pricingService: pricingService,
		adminService:   adminService,
		syncService:    syncService,
		cache:          cache,
		publisher:      publisher,
		streamTimeout:  streamTimeout,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/pricing/calculate", h.calculatePrice)
		v1.POST("/pricing/calculate-batch", h.calculatePrices)
		v1.POST("/pricing/calculate-stream", h.calculatePriceStream)
		v1.POST("/pricing/simulate", h.simulateRule)
		v1.GET("/pricing/progress/:correlationId", h.pipelineProgress)
		v1.GET("/pricing/history", h.breakdownHistory)

		v1.POST("/rules", h.createRule)
		v1.GET("/rules", h.listRules)
		v1.GET("/rules/:id", h.getRule)
		v1.PUT("/rules/:id", h.updateRule)
		v1.DELETE("/rules/:id", h.deleteRule)
		v1.POST("/rules/:id/toggle", h.toggleRule)
		v1.POST("/rules/:id/clone", h.cloneRule)

		v1.POST("/strategies", h.createStrategy)
		v1.GET("/strategies", h.listStrategies)
		v1.GET("/strategies/:id", h.getStrategy)
		v1.PUT("/strategies/:id/blocks", h.reorderStrategyBlocks)
		v1.PUT("/strategies/:id/blocks/:blockId", h.updateStrategyBlock)
		v1.POST("/strategies/:id/default", h.setDefaultStrategy)
		v1.POST("/strategies/:id/archive", h.archiveStrategy)
		v1.GET("/strategies/:id/conflicts", h.strategyConflicts)

		v1.GET("/bundles", h.listBundles)
		v1.GET("/bundles/:id", h.getBundle)

		v1.DELETE("/cache/bundle/:id", h.clearCacheBundle)
		v1.DELETE("/cache/country/:code", h.clearCacheCountry)
		v1.DELETE("/cache", h.clearCacheAll)
		v1.POST("/cache/cleanup", h.cleanupCache)
		v1.GET("/cache/stats", h.cacheStats)

		v1.POST("/sync", h.triggerSync)
		v1.GET("/sync", h.listSyncJobs)
		v1.GET("/sync/:id", h.getSyncJob)
		v1.POST("/sync/:id/cancel", h.cancelSyncJob)
		v1.GET("/sync/:id/progress", h.syncProgress)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// calculatePrice handles a single price calculation
func (h *Handler) calculatePrice(c *gin.Context) {
	var pctx models.PricingContext
	if err := c.ShouldBindJSON(&pctx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	breakdown, err := h.pricingService.CalculatePrice(c.Request.Context(), pctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// calculatePrices handles a batch calculation; result order matches
// input order
func (h *Handler) calculatePrices(c *gin.Context) {
	var req struct {
		Contexts []models.PricingContext `json:"contexts" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	results, err := h.pricingService.CalculatePrices(c.Request.Context(), req.Contexts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// calculatePriceStream runs a calculation and streams its step trace as
// server-sent events. The run continues even if the client disconnects;
// the terminal event carries the final breakdown or the error.
func (h *Handler) calculatePriceStream(c *gin.Context) {
	var pctx models.PricingContext
	if err := c.ShouldBindJSON(&pctx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if pctx.CorrelationID == "" {
		pctx.CorrelationID = uuid.New().String()
	}

	// Subscribe before launching so no step is missed.
	steps, cancel := h.publisher.SubscribeSteps(pctx.CorrelationID)
	defer cancel()

	go func() {
		ctx, cancelRun := context.WithTimeout(context.Background(), h.streamTimeout)
		defer cancelRun()
		_, _ = h.pricingService.CalculatePrice(ctx, pctx)
	}()

	h.streamEvents(c, func(c *gin.Context) bool {
		select {
		case ev, ok := <-steps:
			if !ok {
				return false
			}
			c.SSEvent("step", ev)
			return !ev.IsComplete
		case <-c.Request.Context().Done():
			return false
		case <-time.After(h.streamTimeout):
			c.SSEvent("error", gin.H{"error": "stream timed out"})
			return false
		}
	})
}

// pipelineProgress streams the named-stage progress of a running
// calculation identified by its correlation id
func (h *Handler) pipelineProgress(c *gin.Context) {
	correlationID := c.Param("correlationId")
	stages, cancel := h.publisher.SubscribeStages(correlationID)
	defer cancel()

	h.streamEvents(c, func(c *gin.Context) bool {
		select {
		case ev, ok := <-stages:
			if !ok {
				return false
			}
			c.SSEvent("stage", ev)
			return ev.State != models.StateDone && ev.State != models.StateFailed
		case <-c.Request.Context().Done():
			return false
		case <-time.After(h.streamTimeout):
			return false
		}
	})
}

// simulateRule handles a what-if run with a candidate rule
func (h *Handler) simulateRule(c *gin.Context) {
	var req struct {
		Rule    models.PricingRule    `json:"rule" binding:"required"`
		Context models.PricingContext `json:"context" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	breakdown, err := h.pricingService.SimulateRule(c.Request.Context(), req.Rule, req.Context)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// breakdownHistory lists recent persisted breakdowns for a destination
func (h *Handler) breakdownHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	history, err := h.pricingService.ListBreakdownHistory(c.Request.Context(), c.Query("destination"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakdowns": history})
}

// createRule handles rule creation
func (h *Handler) createRule(c *gin.Context) {
	var rule models.PricingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	created, err := h.adminService.CreateRule(c.Request.Context(), &rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// listRules handles rule listing
func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.adminService.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// getRule handles get rule by ID
func (h *Handler) getRule(c *gin.Context) {
	rule, err := h.adminService.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// updateRule handles rule update
func (h *Handler) updateRule(c *gin.Context) {
	var rule models.PricingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	rule.ID = c.Param("id")

	updated, err := h.adminService.UpdateRule(c.Request.Context(), &rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteRule handles rule deletion
func (h *Handler) deleteRule(c *gin.Context) {
	if err := h.adminService.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// toggleRule handles enabling or disabling a rule
func (h *Handler) toggleRule(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rule, err := h.adminService.ToggleRule(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// cloneRule handles rule cloning
func (h *Handler) cloneRule(c *gin.Context) {
	clone, err := h.adminService.CloneRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, clone)
}

// createStrategy handles strategy creation
func (h *Handler) createStrategy(c *gin.Context) {
	var strategy models.PricingStrategy
	if err := c.ShouldBindJSON(&strategy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	created, err := h.adminService.CreateStrategy(c.Request.Context(), &strategy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// listStrategies handles strategy listing for a tenant
func (h *Handler) listStrategies(c *gin.Context) {
	strategies, err := h.adminService.ListStrategies(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

// getStrategy handles get strategy by ID
func (h *Handler) getStrategy(c *gin.Context) {
	strategy, err := h.adminService.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// reorderStrategyBlocks rewrites a strategy's block order
func (h *Handler) reorderStrategyBlocks(c *gin.Context) {
	var req struct {
		Blocks []models.StrategyBlock `json:"blocks" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	strategy, err := h.adminService.ReorderStrategyBlocks(c.Request.Context(), c.Param("id"), req.Blocks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// updateStrategyBlock rewrites one binding of a strategy
func (h *Handler) updateStrategyBlock(c *gin.Context) {
	var block models.StrategyBlock
	if err := c.ShouldBindJSON(&block); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	block.ID = c.Param("blockId")

	strategy, err := h.adminService.UpdateStrategyBlock(c.Request.Context(), c.Param("id"), &block)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// setDefaultStrategy promotes a strategy to tenant default
func (h *Handler) setDefaultStrategy(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.adminService.SetDefaultStrategy(c.Request.Context(), req.TenantID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// archiveStrategy soft-deletes a strategy
func (h *Handler) archiveStrategy(c *gin.Context) {
	if err := h.adminService.ArchiveStrategy(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// strategyConflicts reports rule pairs with ambiguous ordering
func (h *Handler) strategyConflicts(c *gin.Context) {
	conflicts, err := h.adminService.FindConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

// listBundles handles bundle listing
func (h *Handler) listBundles(c *gin.Context) {
	bundles, err := h.pricingService.ListBundles(c.Request.Context(), c.Query("destination"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bundles": bundles})
}

// getBundle handles get bundle by ID
func (h *Handler) getBundle(c *gin.Context) {
	bundle, err := h.pricingService.GetBundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// clearCacheBundle invalidates cached breakdowns priced from one bundle
func (h *Handler) clearCacheBundle(c *gin.Context) {
	removed, err := h.cache.InvalidateByBundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// clearCacheCountry invalidates cached breakdowns for one destination
func (h *Handler) clearCacheCountry(c *gin.Context) {
	removed, err := h.cache.InvalidateByCountry(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// clearCacheAll invalidates every cached breakdown
func (h *Handler) clearCacheAll(c *gin.Context) {
	removed, err := h.cache.InvalidateAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// cleanupCache sweeps dangling index entries
func (h *Handler) cleanupCache(c *gin.Context) {
	removed, err := h.cache.CleanupExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// cacheStats reports hit/miss counters and key count
func (h *Handler) cacheStats(c *gin.Context) {
	stats, err := h.cache.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// triggerSync handles sync job triggering
func (h *Handler) triggerSync(c *gin.Context) {
	var req service.TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	job, err := h.syncService.TriggerSync(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// listSyncJobs handles sync job history listing
func (h *Handler) listSyncJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	jobs, err := h.syncService.ListJobs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"active": h.syncService.RunningJobs(),
	})
}

// getSyncJob handles sync job status polling
func (h *Handler) getSyncJob(c *gin.Context) {
	job, err := h.syncService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// cancelSyncJob requests sync job cancellation
func (h *Handler) cancelSyncJob(c *gin.Context) {
	if err := h.syncService.CancelJob(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// syncProgress streams the progress of a sync job as server-sent events
func (h *Handler) syncProgress(c *gin.Context) {
	jobID := c.Param("id")
	events, cancel := h.publisher.SubscribeSync(jobID)
	defer cancel()

	h.streamEvents(c, func(c *gin.Context) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			switch ev.Status {
			case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		case <-time.After(h.streamTimeout):
			return false
		}
	})
}

// streamEvents drives a server-sent event loop until step returns false
func (h *Handler) streamEvents(c *gin.Context, step func(c *gin.Context) bool) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		return step(c)
	})
}

// respondError maps the typed failure taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var conflictErr *models.ConflictError
	var timeoutErr *models.TimeoutError
	var computationErr *models.ComputationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		body := gin.H{"error": conflictErr.Error()}
		if conflictErr.Conflicting != nil {
			body["conflicting_job"] = conflictErr.Conflicting
		}
		c.JSON(http.StatusConflict, body)
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": timeoutErr.Error()})
	case errors.As(err, &computationErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": computationErr.Error(),
			"steps": computationErr.PartialSteps,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
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
