package delivery

import (
	"net/http"
	"strconv"

	"mailmatch-backend/internal/conversation/usecase"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversationUsecase usecase.ConversationUsecase
}

func NewConversationHandler(conversationUsecase usecase.ConversationUsecase) *ConversationHandler {
	return &ConversationHandler{
		conversationUsecase: conversationUsecase,
	}
}

func (h *ConversationHandler) RunFullSync(c *gin.Context) {
	inboxID := c.Param("id")
	result, err := h.conversationUsecase.RunFullSync(c.Request.Context(), inboxID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ConversationHandler) RunIncrementalSync(c *gin.Context) {
	inboxID := c.Param("id")
	result, err := h.conversationUsecase.RunIncrementalSync(c.Request.Context(), inboxID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ConversationHandler) ListTopics(c *gin.Context) {
	inboxID := c.Param("id")

	limit := 20
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	topics, err := h.conversationUsecase.ListTopics(inboxID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": topics,
		"limit":  limit,
		"offset": offset,
	})
}

// FindBestTemplate answers the template retrieval query for one message.
// An empty template_id means the scope has no examples to match against.
func (h *ConversationHandler) FindBestTemplate(c *gin.Context) {
	messageID := c.Param("id")
	scopeID := c.Query("scope_id")
	if scopeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope_id is required"})
		return
	}

	templateID, err := h.conversationUsecase.FindBestTemplate(c.Request.Context(), messageID, scopeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"template_id": templateID})
}

type createTemplateRequest struct {
	ScopeID string `json:"scope_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

func (h *ConversationHandler) CreateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template, err := h.conversationUsecase.CreateTemplate(req.ScopeID, req.Name, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, template)
}

type registerExampleRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

func (h *ConversationHandler) RegisterTemplateExample(c *gin.Context) {
	templateID := c.Param("id")
	var req registerExampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversationUsecase.RegisterTemplateExample(c.Request.Context(), templateID, req.MessageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "example registered"})
}

func (h *ConversationHandler) DeleteTemplate(c *gin.Context) {
	templateID := c.Param("id")
	if err := h.conversationUsecase.DeleteTemplate(c.Request.Context(), templateID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}
