package delivery

import (
	"errors"
	"net/http"
	"time"

	"subtrack-backend/internal/alert/domain"
	"subtrack-backend/internal/alert/usecase"

	"github.com/gin-gonic/gin"
)

// AlertHandler handles alert and preference HTTP requests
type AlertHandler struct {
	alertUsecase usecase.AlertUsecase
}

func NewAlertHandler(alertUsecase usecase.AlertUsecase) *AlertHandler {
	return &AlertHandler{alertUsecase: alertUsecase}
}

// ListAlerts returns the user's alerts
// GET /api/alerts?status=pending
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	userID := c.GetString("userID")

	var statusPtr *domain.AlertStatus
	if s := c.Query("status"); s != "" {
		status := domain.AlertStatus(s)
		statusPtr = &status
	}

	alerts, err := h.alertUsecase.List(userID, statusPtr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

type snoozeRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

// Snooze hides an alert until a wake time
// POST /api/alerts/:id/snooze
func (h *AlertHandler) Snooze(c *gin.Context) {
	userID := c.GetString("userID")
	alertID := c.Param("id")

	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alertUsecase.Snooze(userID, alertID, req.Until)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// Dismiss permanently closes an alert
// POST /api/alerts/:id/dismiss
func (h *AlertHandler) Dismiss(c *gin.Context) {
	userID := c.GetString("userID")
	alertID := c.Param("id")

	alert, err := h.alertUsecase.Dismiss(userID, alertID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// GetPreferences returns the user's alert preferences
// GET /api/preferences
func (h *AlertHandler) GetPreferences(c *gin.Context) {
	userID := c.GetString("userID")

	prefs, err := h.alertUsecase.GetPreferences(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences replaces the user's alert preferences
// PUT /api/preferences
func (h *AlertHandler) UpdatePreferences(c *gin.Context) {
	userID := c.GetString("userID")

	var prefs domain.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alertUsecase.UpdatePreferences(userID, prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

func (h *AlertHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, usecase.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
