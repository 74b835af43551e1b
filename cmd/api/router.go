package api

import (
	"net/http"

	conversationDelivery "mailmatch-backend/internal/conversation/delivery"
	conversationUsecase "mailmatch-backend/internal/conversation/usecase"
	inboxDelivery "mailmatch-backend/internal/inbox/delivery"
	inboxUsecase "mailmatch-backend/internal/inbox/usecase"
	"mailmatch-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, inboxUC inboxUsecase.InboxUsecase, conversationUC conversationUsecase.ConversationUsecase, cfg *config.Config) {
	inboxHandler := inboxDelivery.NewInboxHandler(inboxUC)
	conversationHandler := conversationDelivery.NewConversationHandler(conversationUC)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		inboxes := api.Group("/inboxes")
		{
			inboxes.POST("", inboxHandler.Connect)
			inboxes.GET("", inboxHandler.List)
			inboxes.GET("/:id", inboxHandler.Get)
			inboxes.DELETE("/:id", inboxHandler.Disconnect)

			inboxes.POST("/:id/sync/full", conversationHandler.RunFullSync)
			inboxes.POST("/:id/sync/incremental", conversationHandler.RunIncrementalSync)
			inboxes.GET("/:id/topics", conversationHandler.ListTopics)
		}

		messages := api.Group("/messages")
		{
			messages.GET("/:id/best-template", conversationHandler.FindBestTemplate)
		}

		templates := api.Group("/templates")
		{
			templates.POST("", conversationHandler.CreateTemplate)
			templates.POST("/:id/examples", conversationHandler.RegisterTemplateExample)
			templates.DELETE("/:id", conversationHandler.DeleteTemplate)
		}
	}
}
