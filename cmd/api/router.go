package api

import (
	"net/http"

	alertDelivery "subtrack-backend/internal/alert/delivery"
	"subtrack-backend/internal/auth/delivery"
	authUsecase "subtrack-backend/internal/auth/usecase"
	mailDelivery "subtrack-backend/internal/mailscan/delivery"
	subDelivery "subtrack-backend/internal/subscription/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	authHandler *delivery.AuthHandler,
	accountHandler *mailDelivery.AccountHandler,
	subHandler *subDelivery.SubscriptionHandler,
	alertHandler *alertDelivery.AlertHandler,
) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUc))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Mailbox account routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(delivery.AuthMiddleware(authUc))
		{
			accounts.GET("", accountHandler.ListAccounts)
			accounts.POST("/gmail", accountHandler.ConnectGmail)
			accounts.POST("/imap", accountHandler.ConnectIMAP)
			accounts.DELETE("/:id", accountHandler.Disconnect)
			accounts.POST("/scan", accountHandler.ScanAll)
			accounts.POST("/:id/scan", accountHandler.Scan)
		}

		// Subscription ledger routes (protected)
		subscriptions := api.Group("/subscriptions")
		subscriptions.Use(delivery.AuthMiddleware(authUc))
		{
			subscriptions.GET("", subHandler.ListSubscriptions)
			subscriptions.POST("", subHandler.CreateSubscription)
			subscriptions.GET("/:id", subHandler.GetSubscription)
			subscriptions.GET("/:id/history", subHandler.GetHistory)
			subscriptions.POST("/:id/approve", subHandler.Approve)
			subscriptions.POST("/:id/reject", subHandler.Reject)
			subscriptions.POST("/:id/cancel", subHandler.Cancel)
			subscriptions.POST("/:id/reactivate", subHandler.Reactivate)
		}

		// Alert routes (protected)
		alerts := api.Group("/alerts")
		alerts.Use(delivery.AuthMiddleware(authUc))
		{
			alerts.GET("", alertHandler.ListAlerts)
			alerts.POST("/:id/snooze", alertHandler.Snooze)
			alerts.POST("/:id/dismiss", alertHandler.Dismiss)
		}

		// Preference routes (protected)
		preferences := api.Group("/preferences")
		preferences.Use(delivery.AuthMiddleware(authUc))
		{
			preferences.GET("", alertHandler.GetPreferences)
			preferences.PUT("", alertHandler.UpdatePreferences)
		}
	}
}
