package payments

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wkarimi/nyumbapay/internal/identity"
	"github.com/wkarimi/nyumbapay/internal/pagination"
	"github.com/wkarimi/nyumbapay/internal/validation"
)

// Handler provides HTTP handlers for the payments API.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler creates a payments handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// RegisterRoutes sets up the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.Submit)
	r.GET("/payments", h.List)
	r.GET("/payments/:id", h.Get)
	r.POST("/payments/:id/verify", h.Verify)
	r.POST("/payments/:id/cancel", h.Cancel)
}

// submitBody is the wire shape of a payment intent. Amounts arrive in major
// units and are converted to cents before anything else sees them.
type submitBody struct {
	UserID        string    `json:"userId" binding:"required"`
	PropertyID    string    `json:"propertyId"`
	Amount        float64   `json:"amount" binding:"required"`
	Currency      string    `json:"currency" binding:"required"`
	Type          string    `json:"type" binding:"required"`
	Method        string    `json:"method" binding:"required"`
	Provider      string    `json:"provider"`
	Reference     string    `json:"reference" binding:"required"`
	Description   string    `json:"description"`
	PropertyPrice float64   `json:"propertyPrice"`
	AccountAge    time.Time `json:"accountCreatedAt"`

	DeviceID  string    `json:"deviceId"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Location  *Location `json:"location"`

	SecurityToken      string `json:"securityToken"`
	VerificationMethod string `json:"verificationMethod"`
}

func toCents(major float64) int64 {
	return int64(math.Round(major * 100))
}

// Submit handles POST /api/v1/payments
func (h *Handler) Submit(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amountCents := toCents(body.Amount)
	if errs := validation.Validate(
		validation.ValidAmount("amount", amountCents),
		validation.ValidCurrency("currency", body.Currency),
		validation.ValidReference("reference", body.Reference),
		validation.OneOf("type", body.Type,
			string(TypeFullPayment), string(TypeRentalDeposit),
			string(TypeBookingFee), string(TypeSubscription)),
		validation.OneOf("method", body.Method,
			string(MethodCard), string(MethodBankTransfer),
			string(MethodMobileMoney), string(MethodWallet)),
		validation.MaxLen("description", body.Description, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}

	req := SubmitRequest{
		UserID:             body.UserID,
		PropertyID:         body.PropertyID,
		AmountCents:        amountCents,
		Currency:           body.Currency,
		Type:               Type(body.Type),
		Method:             Method(body.Method),
		Provider:           body.Provider,
		Reference:          body.Reference,
		Description:        validation.SanitizeString(body.Description, validation.MaxStringLength),
		PropertyPriceCents: toCents(body.PropertyPrice),
		AccountCreatedAt:   body.AccountAge,
		DeviceID:           body.DeviceID,
		IPAddress:          c.ClientIP(),
		UserAgent:          c.Request.UserAgent(),
		Location:           body.Location,
		SecurityToken:      body.SecurityToken,
		VerificationMethod: body.VerificationMethod,
	}
	if body.IPAddress != "" {
		req.IPAddress = body.IPAddress
	}
	if body.UserAgent != "" {
		req.UserAgent = body.UserAgent
	}

	tx, err := h.orchestrator.Submit(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(statusCodeFor(tx), gin.H{"transaction": tx})
	case errors.Is(err, ErrVerificationRequired):
		c.JSON(http.StatusConflict, gin.H{
			"error":       "verification_required",
			"message":     "Identity verification is required before this payment can continue",
			"transaction": tx,
		})
	case errors.Is(err, ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_token",
			"message": "The security token is missing, invalid, or expired",
		})
	case errors.Is(err, ErrAttemptInFlight):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "attempt_in_progress",
			"message": "This payment is already being processed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process payment",
		})
	}
}

// statusCodeFor picks the HTTP status for a submitted transaction.
func statusCodeFor(tx *Transaction) int {
	switch tx.State {
	case StateBlocked:
		return http.StatusForbidden
	case StateVerifying:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

type verifyBody struct {
	Method         string `json:"method" binding:"required"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	Code           string `json:"code"`
}

// Verify handles POST /api/v1/payments/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	outcome, err := h.orchestrator.Verify(c.Request.Context(), c.Param("id"), identity.CheckRequest{
		Method:         identity.Method(body.Method),
		DocumentType:   body.DocumentType,
		DocumentNumber: body.DocumentNumber,
		Code:           body.Code,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, outcome)
	case errors.Is(err, ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, ErrNotVerifying), errors.Is(err, ErrTerminalState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_verifying",
			"message": "This transaction is not awaiting identity verification",
		})
	case errors.Is(err, identity.ErrUnknownMethod):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_method",
			"message": "Verification method must be document, facial, or two_factor",
		})
	case errors.Is(err, identity.ErrAttemptCapExceeded):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "verification_failed",
			"message": "Verification attempts exhausted; this payment cannot continue",
		})
	case errors.Is(err, identity.ErrAttemptInFlight):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "attempt_in_progress",
			"message": "A verification attempt is already in progress",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to run identity verification",
		})
	}
}

// Cancel handles POST /api/v1/payments/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	tx, err := h.orchestrator.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
	case errors.Is(err, ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "cannot_cancel",
			"message": "This transaction can no longer be cancelled",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to cancel transaction",
		})
	}
}

// Get handles GET /api/v1/payments/:id
func (h *Handler) Get(c *gin.Context) {
	tx, err := h.orchestrator.Get(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
	case errors.Is(err, ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction",
		})
	}
}

// List handles GET /api/v1/payments?userId=&limit=
func (h *Handler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_user",
			"message": "userId query parameter is required",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor query parameter is not a valid cursor",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	list, err := h.orchestrator.ListByUser(c.Request.Context(), userID, limit+1, after)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}

	list, next, hasMore := pagination.ComputePage(list, limit, func(tx *Transaction) (time.Time, string) {
		return tx.CreatedAt, tx.ID
	})
	if list == nil {
		list = []*Transaction{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": list,
		"count":        len(list),
		"nextCursor":   next,
		"hasMore":      hasMore,
	})
}
