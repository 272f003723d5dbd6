package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/service"
	"reservation-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	holdService *service.HoldService
	dealService *service.DealService
}

// NewHandler creates a new HTTP handler
func NewHandler(holdService *service.HoldService, dealService *service.DealService) *Handler {
	return &Handler{
		holdService: holdService,
		dealService: dealService,
	}
}

// SetupRoutes sets up HTTP routes. Authentication happens upstream; the
// gateway injects the caller's identity as X-User-ID and this service
// enforces roles and ownership on top of it.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(requireUser())
	{
		v1.GET("/products", h.listProducts)

		v1.POST("/holds", h.createHold)
		v1.GET("/holds", h.listHolds)
		v1.GET("/holds/:id", h.getHold)
		v1.POST("/holds/:id/extend", h.extendHold)
		v1.POST("/holds/:id/cancel", h.cancelHold)
		v1.POST("/holds/:id/convert", h.convertHold)

		v1.GET("/deals", h.listDeals)
		v1.GET("/deals/:id", h.getDeal)
		v1.POST("/deals/:id/advance", h.advanceDeal)
		v1.POST("/deals/:id/reject", h.rejectDeal)
		v1.POST("/deals/:id/review", h.uploadReview)

		v1.GET("/reports/sales", h.salesReport)

		v1.POST("/admin/sweep", h.runSweep)
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

// listProducts handles catalog browsing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.holdService.ListProducts(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type createHoldRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// createHold handles hold creation
func (h *Handler) createHold(c *gin.Context) {
	var req createHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	hold, err := h.holdService.CreateHold(c.Request.Context(), userID(c), req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hold)
}

// getHold handles get hold by ID
func (h *Handler) getHold(c *gin.Context) {
	hold, err := h.holdService.GetHold(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hold)
}

// listHolds handles listing holds for the caller (all holds for admins)
func (h *Handler) listHolds(c *gin.Context) {
	holds, err := h.holdService.ListHolds(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holds": holds})
}

// extendHold handles the one-shot late extension
func (h *Handler) extendHold(c *gin.Context) {
	if err := h.holdService.ExtendHold(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	hold, err := h.holdService.GetHold(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hold)
}

// cancelHold handles voluntary hold release
func (h *Handler) cancelHold(c *gin.Context) {
	if err := h.holdService.CancelHold(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.HoldStatusCancelled})
}

type convertHoldRequest struct {
	OrderScreenshotPath   string `json:"order_screenshot_path" binding:"required"`
	CustomerName          string `json:"customer_name" binding:"required"`
	CustomerPaypal        string `json:"customer_paypal"`
	CustomerTelegram      string `json:"customer_telegram"`
	MarketplaceProfileURL string `json:"marketplace_profile_url" binding:"required"`
}

// convertHold handles hold-to-deal conversion
func (h *Handler) convertHold(c *gin.Context) {
	var req convertHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	deal, err := h.dealService.ConvertHoldToDeal(c.Request.Context(), service.ConvertHoldInput{
		HoldID:                c.Param("id"),
		AgentID:               userID(c),
		OrderScreenshotPath:   req.OrderScreenshotPath,
		CustomerName:          req.CustomerName,
		CustomerPaypal:        req.CustomerPaypal,
		CustomerTelegram:      req.CustomerTelegram,
		MarketplaceProfileURL: req.MarketplaceProfileURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, deal)
}

// getDeal handles get deal by ID
func (h *Handler) getDeal(c *gin.Context) {
	deal, err := h.dealService.GetDeal(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// listDeals handles listing deals, optionally filtered by status
func (h *Handler) listDeals(c *gin.Context) {
	deals, err := h.dealService.ListDeals(c.Request.Context(), userID(c), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

type advanceDealRequest struct {
	Target string `json:"target" binding:"required"`
}

// advanceDeal handles admin-driven forward transitions
func (h *Handler) advanceDeal(c *gin.Context) {
	var req advanceDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.dealService.AdvanceDeal(c.Request.Context(), userID(c), c.Param("id"), req.Target); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Target})
}

type rejectDealRequest struct {
	Note string `json:"note"`
}

// rejectDeal handles admin rejection
func (h *Handler) rejectDeal(c *gin.Context) {
	var req rejectDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.dealService.RejectDeal(c.Request.Context(), userID(c), c.Param("id"), req.Note); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.DealStatusRejected})
}

type uploadReviewRequest struct {
	ReviewLink           string `json:"review_link" binding:"required"`
	ReviewScreenshotPath string `json:"review_screenshot_path" binding:"required"`
}

// uploadReview handles agent review-evidence upload
func (h *Handler) uploadReview(c *gin.Context) {
	var req uploadReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.dealService.UploadReviewEvidence(c.Request.Context(), userID(c), c.Param("id"), req.ReviewLink, req.ReviewScreenshotPath); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.DealStatusReviewUploaded})
}

// salesReport handles the daily completed-sales rollup
func (h *Handler) salesReport(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
			return
		}
		to = t
	}

	metrics, err := h.dealService.SalesReport(c.Request.Context(), userID(c), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

// runSweep triggers an expiry sweep on demand
func (h *Handler) runSweep(c *gin.Context) {
	count, err := h.holdService.ExpireStaleHolds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}

func userID(c *gin.Context) string {
	return c.GetString("user_id")
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-User-ID")
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing X-User-ID header",
			})
			return
		}
		c.Set("user_id", id)
		c.Next()
	}
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrHoldNotFound),
		errors.Is(err, models.ErrDealNotFound),
		errors.Is(err, models.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, models.ErrForbidden),
		errors.Is(err, models.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, models.ErrCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})

	case errors.Is(err, models.ErrSoldOut),
		errors.Is(err, models.ErrAlreadyHeld),
		errors.Is(err, models.ErrProductInactive),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrHoldExpired),
		errors.Is(err, models.ErrTooEarly),
		errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
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
