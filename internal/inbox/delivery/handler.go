package delivery

import (
	"net/http"

	inboxdomain "mailmatch-backend/internal/inbox/domain"
	"mailmatch-backend/internal/inbox/usecase"

	"github.com/gin-gonic/gin"
)

type InboxHandler struct {
	inboxUsecase usecase.InboxUsecase
}

func NewInboxHandler(inboxUsecase usecase.InboxUsecase) *InboxHandler {
	return &InboxHandler{
		inboxUsecase: inboxUsecase,
	}
}

type connectRequest struct {
	Provider     string `json:"provider" binding:"required"`
	OwnerAddress string `json:"owner_address" binding:"required,email"`

	// Gmail credentials
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// IMAP credentials
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *InboxHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds := &inboxdomain.Credentials{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Host:         req.Host,
		Port:         req.Port,
		Username:     req.Username,
		Password:     req.Password,
	}

	inbox, err := h.inboxUsecase.Connect(c.Request.Context(), inboxdomain.ProviderKind(req.Provider), req.OwnerAddress, creds)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, inbox)
}

func (h *InboxHandler) Disconnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.inboxUsecase.Disconnect(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "inbox disconnected"})
}

func (h *InboxHandler) Get(c *gin.Context) {
	id := c.Param("id")
	inbox, err := h.inboxUsecase.Get(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inbox == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inbox not found"})
		return
	}

	c.JSON(http.StatusOK, inbox)
}

func (h *InboxHandler) List(c *gin.Context) {
	inboxes, err := h.inboxUsecase.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inboxes": inboxes})
}
