package part

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
)

// Handler 配件库存 HTTP 接口。全部路由仅管理员可用。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

// RegisterRoutes 挂载 /api/parts 路由分组。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/parts", httpserver.RequireRoles(user.RoleAdmin))
	g.POST("", h.CreatePart)
	g.GET("", h.ListParts)
	g.GET("/low-stock", h.ListLowStock)
	g.PATCH("/:id", h.UpdatePart)
	g.DELETE("/:id", h.DeletePart)
	g.POST("/:id/stock-in", h.StockIn)
	g.POST("/:id/stock-out", h.StockOut)
	g.GET("/:id/movements", h.ListMovements)
}

type createPartRequest struct {
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Stock        int    `json:"stock"`
	Threshold    int    `json:"threshold"`
	UoM          string `json:"uom"`
	SerialNumber string `json:"serialNumber"`
}

func (h *Handler) CreatePart(c *gin.Context) {
	var req createPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please enter part name"})
		return
	case req.Price < 0:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Price must be >= 0"})
		return
	case req.Stock <= 0:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Stock must be > 0"})
		return
	case req.Threshold <= 0:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Threshold must be > 0"})
		return
	case !ValidUoM(UoM(req.UoM)):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid UoM"})
		return
	}

	p := &Part{
		Name:         name,
		Price:        req.Price,
		Stock:        req.Stock,
		Threshold:    req.Threshold,
		UoM:          UoM(req.UoM),
		SerialNumber: strings.TrimSpace(req.SerialNumber),
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Part created successfully", "data": p})
}

func (h *Handler) ListParts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	parts, total, err := h.repo.List(c.Request.Context(), strings.TrimSpace(c.Query("search")), (page-1)*limit, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parts, "count": total, "page": page})
}

func (h *Handler) ListLowStock(c *gin.Context) {
	parts, err := h.repo.ListLowStock(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parts})
}

type updatePartRequest struct {
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Threshold    int    `json:"threshold"`
	UoM          string `json:"uom"`
	SerialNumber string `json:"serialNumber"`
}

func (h *Handler) UpdatePart(c *gin.Context) {
	var req updatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please enter part name"})
		return
	case req.Price < 0:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Price must be >= 0"})
		return
	case req.Threshold <= 0:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Threshold must be > 0"})
		return
	case !ValidUoM(UoM(req.UoM)):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid UoM"})
		return
	}

	ok, err := h.repo.UpdateDetails(c.Request.Context(), c.Param("id"), map[string]any{
		"name":          name,
		"price":         req.Price,
		"threshold":     req.Threshold,
		"uom":           req.UoM,
		"serial_number": strings.TrimSpace(req.SerialNumber),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Part not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Part updated successfully"})
}

func (h *Handler) DeletePart(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Part deleted successfully"})
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

func actorID(c *gin.Context) string {
	if ai, ok := httpserver.AuthFromContext(c); ok {
		return ai.Subject
	}
	return ""
}

func (h *Handler) StockIn(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Quantity must be > 0"})
		return
	}
	p, err := h.repo.StockIn(c.Request.Context(), c.Param("id"), req.Quantity, actorID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Part not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "data": p})
}

func (h *Handler) ListMovements(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	moves, err := h.repo.ListMovements(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": moves})
}

func (h *Handler) StockOut(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Quantity must be > 0"})
		return
	}
	p, err := h.repo.StockOut(c.Request.Context(), c.Param("id"), req.Quantity, actorID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Part not found"})
		return
	}
	if errors.Is(err, ErrInsufficientStock) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Insufficient stock"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "data": p})
}
