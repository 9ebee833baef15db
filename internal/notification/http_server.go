package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"gorm.io/gorm"
)

// Handler 通知轮询接口。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

// RegisterRoutes 挂载 /api/notifications 路由分组。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/notifications")
	g.GET("", h.List)
	g.PATCH("/:id/read", h.MarkRead)
	g.POST("/read-all", h.MarkAllRead)
}

func (h *Handler) List(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	unreadOnly := c.Query("unread") == "true"

	rows, total, err := h.repo.ListByUser(c.Request.Context(), ai.Subject, unreadOnly, (page-1)*size, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": total, "page": page, "pageSize": size})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	err := h.repo.MarkRead(c.Request.Context(), c.Param("id"), ai.Subject)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"message": "Notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	if err := h.repo.MarkAllRead(c.Request.Context(), ai.Subject); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}
