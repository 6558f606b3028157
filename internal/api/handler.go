package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/service"
	"compliance-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	ledger       *service.LedgerService
	certificates *service.CertificateService
	edi          *service.EdiService
}

// NewHandler creates a new HTTP handler
func NewHandler(ledger *service.LedgerService, certificates *service.CertificateService, edi *service.EdiService) *Handler {
	return &Handler{
		ledger:       ledger,
		certificates: certificates,
		edi:          edi,
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
		v1.GET("/listings/:id/compliance", h.getCompliance)
		v1.POST("/listings/:id/compliance/enable", h.enableCompliance)
		v1.POST("/listings/:id/compliance/recalculate", h.recalculate)
		v1.GET("/listings/:id/compliance/inputs", h.listInputs)
		v1.POST("/listings/:id/compliance/inputs", h.addInput)
		v1.PUT("/compliance/inputs/:id", h.updateInput)
		v1.DELETE("/compliance/inputs/:id", h.deleteInput)
		v1.GET("/listings/:id/certificate", h.generateCertificate)

		v1.GET("/listings/:id/edi", h.getWorkflow)
		v1.GET("/listings/:id/edi/transactions", h.listTransactions)
		v1.POST("/listings/:id/edi/850", h.generate850)
		v1.POST("/listings/:id/edi/draft", h.draftWithAI)

		v1.POST("/edi", h.createTransaction)
		v1.GET("/edi/:id", h.getTransaction)
		v1.PUT("/edi/:id", h.updateTransaction)
		v1.DELETE("/edi/:id", h.deleteTransaction)
		v1.POST("/edi/:id/855", h.generate855)
		v1.POST("/edi/:id/856", h.generate856)
		v1.POST("/edi/:id/810", h.generate810)
		v1.POST("/edi/:id/820", h.generate820)
		v1.POST("/edi/:id/997", h.generate997)
		v1.POST("/edi/:id/validate", h.validateTransaction)
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

func (h *Handler) getCompliance(c *gin.Context) {
	block, inputs, err := h.ledger.GetCompliance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"compliance": block,
		"inputs":     inputs,
	})
}

func (h *Handler) enableCompliance(c *gin.Context) {
	block, err := h.ledger.EnableTracking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compliance": block})
}

func (h *Handler) recalculate(c *gin.Context) {
	block, err := h.ledger.Recalculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compliance": block})
}

func (h *Handler) listInputs(c *gin.Context) {
	inputs, err := h.ledger.ListInputs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inputs": inputs})
}

func (h *Handler) addInput(c *gin.Context) {
	var req service.CostInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	input, err := h.ledger.AddInput(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, input)
}

func (h *Handler) updateInput(c *gin.Context) {
	var upd service.CostInputUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	input, err := h.ledger.UpdateInput(c.Request.Context(), c.Param("id"), &upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, input)
}

func (h *Handler) deleteInput(c *gin.Context) {
	if err := h.ledger.DeleteInput(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) generateCertificate(c *gin.Context) {
	cert, err := h.certificates.GenerateCertificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) getWorkflow(c *gin.Context) {
	txs, err := h.edi.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	wf, err := h.edi.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"workflow":     wf,
	})
}

func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.edi.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) createTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	tx, err := h.edi.CreateTransaction(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) getTransaction(c *gin.Context) {
	tx, err := h.edi.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) updateTransaction(c *gin.Context) {
	var upd service.UpdateTransactionRequest
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	tx, err := h.edi.UpdateTransaction(c.Request.Context(), c.Param("id"), &upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) deleteTransaction(c *gin.Context) {
	if err := h.edi.DeleteTransaction(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) generate850(c *gin.Context) {
	var req service.Generate850Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	tx, err := h.edi.Generate850(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) generate855(c *gin.Context) {
	var req service.Generate855Request
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.Generate855(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) generate856(c *gin.Context) {
	var req service.Generate856Request
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.Generate856(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) generate810(c *gin.Context) {
	var req service.Generate810Request
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.Generate810(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) generate820(c *gin.Context) {
	var req service.Generate820Request
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.Generate820(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) generate997(c *gin.Context) {
	var req service.Generate997Request
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.Generate997(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) draftWithAI(c *gin.Context) {
	var req service.DraftRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return
	}

	tx, err := h.edi.DraftWithAI(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) validateTransaction(c *gin.Context) {
	tx, err := h.edi.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.edi.ValidateTransaction(tx))
}

// bindOptionalJSON binds a JSON body if one was sent. The chain
// derivation endpoints accept an empty body, meaning "all defaults".
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return err
	}
	return nil
}

// respondError maps domain errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	var validationErr *errs.ValidationError
	var notFoundErr *errs.NotFoundError
	var predecessorErr *errs.InvalidPredecessorError
	var notQualifiedErr *errs.NotQualifiedError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &predecessorErr):
		c.JSON(http.StatusConflict, gin.H{"error": predecessorErr.Error()})
	case errors.As(err, &notQualifiedErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": notQualifiedErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
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
