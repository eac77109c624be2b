package delivery

import (
	"errors"
	"net/http"

	"subtrack-backend/internal/mailscan/domain"
	"subtrack-backend/internal/mailscan/usecase"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles mailbox account HTTP requests
type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{accountUsecase: accountUsecase}
}

type connectGmailRequest struct {
	Email        string `json:"email" binding:"required"`
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

type connectIMAPRequest struct {
	Email    string `json:"email" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ConnectGmail connects a Gmail account using OAuth tokens
// POST /api/accounts/gmail
func (h *AccountHandler) ConnectGmail(c *gin.Context) {
	userID := c.GetString("userID")

	var req connectGmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.Connect(userID, domain.ProviderGmail, &domain.AccountCredentials{
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// ConnectIMAP connects a mailbox over IMAP with password credentials
// POST /api/accounts/imap
func (h *AccountHandler) ConnectIMAP(c *gin.Context) {
	userID := c.GetString("userID")

	var req connectIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.Connect(userID, domain.ProviderIMAP, &domain.AccountCredentials{
		Email:        req.Email,
		IMAPHost:     req.Host,
		IMAPPort:     req.Port,
		IMAPPassword: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// ListAccounts returns the user's connected accounts
// GET /api/accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID := c.GetString("userID")

	accounts, err := h.accountUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// Disconnect disconnects an account and archives its subscriptions
// DELETE /api/accounts/:id
func (h *AccountHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")
	accountID := c.Param("id")

	archived, err := h.accountUsecase.Disconnect(userID, accountID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":                "account disconnected",
		"archived_subscriptions": archived,
	})
}

// Scan triggers an on-demand scan of one account
// POST /api/accounts/:id/scan
func (h *AccountHandler) Scan(c *gin.Context) {
	userID := c.GetString("userID")
	accountID := c.Param("id")

	result, err := h.accountUsecase.Scan(c.Request.Context(), userID, accountID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ScanAll scans every connected account the user owns
// POST /api/accounts/scan
func (h *AccountHandler) ScanAll(c *gin.Context) {
	userID := c.GetString("userID")

	results, err := h.accountUsecase.ScanAll(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *AccountHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, usecase.ErrInvalidAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
