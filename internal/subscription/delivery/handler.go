package delivery

import (
	"errors"
	"net/http"

	"subtrack-backend/internal/subscription/domain"
	"subtrack-backend/internal/subscription/usecase"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler handles subscription ledger HTTP requests
type SubscriptionHandler struct {
	subUsecase usecase.SubscriptionUsecase
}

func NewSubscriptionHandler(subUsecase usecase.SubscriptionUsecase) *SubscriptionHandler {
	return &SubscriptionHandler{subUsecase: subUsecase}
}

// ListSubscriptions returns the user's subscriptions
// GET /api/subscriptions?status=active
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	userID := c.GetString("userID")

	var statusPtr *domain.SubscriptionStatus
	if s := c.Query("status"); s != "" {
		status := domain.SubscriptionStatus(s)
		statusPtr = &status
	}

	subs, err := h.subUsecase.List(userID, statusPtr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// GetSubscription returns one subscription
// GET /api/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID := c.GetString("userID")
	subID := c.Param("id")

	sub, err := h.subUsecase.Get(userID, subID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// GetHistory returns a subscription's audit trail
// GET /api/subscriptions/:id/history
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	userID := c.GetString("userID")
	subID := c.Param("id")

	history, err := h.subUsecase.GetHistory(userID, subID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// CreateSubscription records a manually entered subscription
// POST /api/subscriptions
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	userID := c.GetString("userID")

	var input usecase.ManualSubscriptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.subUsecase.CreateManual(userID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// Approve confirms a review-pending subscription
// POST /api/subscriptions/:id/approve
func (h *SubscriptionHandler) Approve(c *gin.Context) {
	h.transition(c, h.subUsecase.Approve, "subscription approved")
}

// Reject discards a review-pending subscription
// POST /api/subscriptions/:id/reject
func (h *SubscriptionHandler) Reject(c *gin.Context) {
	h.transition(c, h.subUsecase.Reject, "subscription rejected")
}

// Cancel marks a subscription cancelled
// POST /api/subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.subUsecase.Cancel, "subscription cancelled")
}

// Reactivate restores a cancelled subscription
// POST /api/subscriptions/:id/reactivate
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.subUsecase.Reactivate, "subscription reactivated")
}

func (h *SubscriptionHandler) transition(c *gin.Context, op func(userID, subID string) error, message string) {
	userID := c.GetString("userID")
	subID := c.Param("id")

	if err := op(userID, subID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (h *SubscriptionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	case errors.Is(err, usecase.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
