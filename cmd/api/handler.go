package api

import (
	alertDelivery "subtrack-backend/internal/alert/delivery"
	alertUsecasePkg "subtrack-backend/internal/alert/usecase"
	"subtrack-backend/internal/auth/delivery"
	authRepo "subtrack-backend/internal/auth/repository"
	authUsecasePkg "subtrack-backend/internal/auth/usecase"
	mailDelivery "subtrack-backend/internal/mailscan/delivery"
	mailUsecasePkg "subtrack-backend/internal/mailscan/usecase"
	subDelivery "subtrack-backend/internal/subscription/delivery"
	subUsecasePkg "subtrack-backend/internal/subscription/usecase"

	"github.com/gin-gonic/gin"
)

// Handler wires the HTTP surface together
type Handler struct {
	authUsecase    authUsecasePkg.AuthUsecase
	authHandler    *delivery.AuthHandler
	accountHandler *mailDelivery.AccountHandler
	subHandler     *subDelivery.SubscriptionHandler
	alertHandler   *alertDelivery.AlertHandler
}

func NewHandler(
	authUc authUsecasePkg.AuthUsecase,
	fcmRepo authRepo.FCMTokenRepository,
	accountUc mailUsecasePkg.AccountUsecase,
	subUc subUsecasePkg.SubscriptionUsecase,
	alertUc alertUsecasePkg.AlertUsecase,
) *Handler {
	return &Handler{
		authUsecase:    authUc,
		authHandler:    delivery.NewAuthHandler(authUc, fcmRepo),
		accountHandler: mailDelivery.NewAccountHandler(accountUc),
		subHandler:     subDelivery.NewSubscriptionHandler(subUc),
		alertHandler:   alertDelivery.NewAlertHandler(alertUc),
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.authHandler, h.accountHandler, h.subHandler, h.alertHandler)

	return r.Run(addr)
}
