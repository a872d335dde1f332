package behavior

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP handlers for the behavior API.
type Handler struct {
	monitor *Monitor
}

// NewHandler creates a behavior handler.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterRoutes sets up the behavior routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/behavior/check", h.Check)
}

type checkBody struct {
	UserID  string `json:"userId" binding:"required"`
	Actions []struct {
		Type      string            `json:"type" binding:"required"`
		Timestamp time.Time         `json:"timestamp"`
		Location  string            `json:"location"`
		Details   map[string]string `json:"details"`
	} `json:"actions"`
}

// Check handles POST /api/v1/behavior/check. Any actions in the body are
// recorded into the user's window first, then the whole window is evaluated.
func (h *Handler) Check(c *gin.Context) {
	var body checkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	for _, a := range body.Actions {
		h.monitor.Record(body.UserID, Action{
			Type:      ActionType(a.Type),
			Timestamp: a.Timestamp,
			Location:  a.Location,
			Details:   a.Details,
		})
	}

	report := h.monitor.Check(body.UserID)
	c.JSON(http.StatusOK, gin.H{
		"userId": body.UserID,
		"report": report,
	})
}
