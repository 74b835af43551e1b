package api

import (
	conversationUsecase "mailmatch-backend/internal/conversation/usecase"
	inboxUsecase "mailmatch-backend/internal/inbox/usecase"
	"mailmatch-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	inboxUsecase        inboxUsecase.InboxUsecase
	conversationUsecase conversationUsecase.ConversationUsecase
	config              *config.Config
}

func NewHandler(inboxUC inboxUsecase.InboxUsecase, conversationUC conversationUsecase.ConversationUsecase, cfg *config.Config) *Handler {
	return &Handler{
		inboxUsecase:        inboxUC,
		conversationUsecase: conversationUC,
		config:              cfg,
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
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.inboxUsecase, h.conversationUsecase, h.config)

	return r.Run(addr)
}
