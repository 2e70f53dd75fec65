package api

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/service"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// webhookSignatureHeader carries the gateway's HMAC over the raw body
const webhookSignatureHeader = "X-Razorpay-Signature"

// Handler contains HTTP handlers
type Handler struct {
	registrations *service.RegistrationService
	fulfillment   *service.FulfillmentService
	bulkImport    *service.BulkImportService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	registrations *service.RegistrationService,
	fulfillment *service.FulfillmentService,
	bulkImport *service.BulkImportService,
) *Handler {
	return &Handler{
		registrations: registrations,
		fulfillment:   fulfillment,
		bulkImport:    bulkImport,
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
		v1.POST("/registrations", h.createRegistration)
		v1.GET("/registrations/:id", h.getRegistration)
		v1.POST("/registrations/bulk-import", h.bulkImportRegistrations)
		v1.POST("/payments/verify", h.verifyPayment)
		v1.POST("/webhooks/payment", h.paymentWebhook)
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

// createRegistration handles draft creation
func (h *Handler) createRegistration(c *gin.Context) {
	var req service.CreateRegistrationRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.registrations.CreateRegistration(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrCompletedExists) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": "A completed registration already exists for this email",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to create registration",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"registration": resp.Registration,
		"order": gin.H{
			"id":       resp.OrderID,
			"amount":   resp.Amount,
			"currency": resp.Currency,
			"receipt":  resp.Receipt,
		},
	})
}

// getRegistration handles get registration by ID
func (h *Handler) getRegistration(c *gin.Context) {
	reg, err := h.registrations.GetRegistration(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRegistrationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Registration not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch registration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "registration": reg})
}

// paymentWebhook handles inbound payment-captured events. Once the signature
// checks out the gateway always gets a success acknowledgment, whatever the
// downstream outcome, so its retry policy cannot build a delivery storm.
func (h *Handler) paymentWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	err = h.fulfillment.HandlePaymentCaptured(c.Request.Context(), rawBody, c.GetHeader(webhookSignatureHeader))
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid signature"})
	case errors.Is(err, service.ErrAmountMismatch):
		// terminal rejection; acknowledge so the gateway stops retrying
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	case err != nil:
		// transient failure, let the gateway redeliver
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// verifyPayment handles the client-side verification path
func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	err := h.fulfillment.VerifyPayment(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature)
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payment signature"})
	case errors.Is(err, service.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Payment amount mismatch"})
	case errors.Is(err, service.ErrUnknownOrder):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No registration found for order"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to verify payment"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// bulkImportRegistrations handles a CSV bulk import payload
func (h *Handler) bulkImportRegistrations(c *gin.Context) {
	rows, err := parseBulkCSV(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid CSV payload",
			"details": err.Error(),
		})
		return
	}

	result := h.bulkImport.ProcessBulkImport(c.Request.Context(), rows)

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// requiredColumns must all be present in the CSV header
var requiredColumns = []string{"name", "email", "phone", "school", "grade", "section", "payment_id", "is_overseas"}

// parseBulkCSV reads a header-first CSV payload into bulk rows
func parseBulkCSV(r io.Reader) ([]models.BulkRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New("missing header row")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, errors.New("missing required column: " + col)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []models.BulkRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		overseas, _ := strconv.ParseBool(field(record, "is_overseas"))

		rows = append(rows, models.BulkRow{
			Name:       field(record, "name"),
			Email:      field(record, "email"),
			Phone:      field(record, "phone"),
			School:     field(record, "school"),
			Grade:      field(record, "grade"),
			Section:    field(record, "section"),
			PaymentID:  field(record, "payment_id"),
			IsOverseas: overseas,
			AddonID:    field(record, "addon_id"),
			AddonTitle: field(record, "addon_title"),
			DOB:        field(record, "dob"),
			City:       field(record, "city"),
		})
	}

	return rows, nil
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
