package booking

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
)

// Handler 预约/工单 HTTP 接口。
type Handler struct {
	repo *Repo
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{repo: NewRepo(db)}
}

// RegisterRoutes 挂载 /api/bookings 路由分组。
// 状态流转与工单推进是门店操作，仅管理员可用。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/bookings")
	g.POST("", h.CreateBooking)
	g.GET("/:id", h.GetBooking)
	g.PATCH("/:id/status", httpserver.RequireRoles(user.RoleAdmin), h.UpdateStatus)
	g.PATCH("/jobs/:jobId/stage", httpserver.RequireRoles(user.RoleAdmin), h.AdvanceJobStage)
}

type createBookingRequest struct {
	CarID       string   `json:"carId"`
	ScheduledAt string   `json:"scheduledAt"`
	Notes       string   `json:"notes"`
	Jobs        []string `json:"jobs"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.CarID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "carId is required"})
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "scheduledAt must be RFC3339"})
		return
	}

	b := &Booking{
		ID:          uuid.NewString(),
		CarID:       strings.TrimSpace(req.CarID),
		CustomerID:  ai.Subject,
		Status:      StatusPending,
		ScheduledAt: scheduledAt,
		Notes:       strings.TrimSpace(req.Notes),
	}
	for _, title := range req.Jobs {
		b.Jobs = append(b.Jobs, Job{
			ID:    uuid.NewString(),
			Stage: StageInspection,
			Title: strings.TrimSpace(title),
		})
	}
	if err := h.repo.Create(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Booking created successfully", "data": b})
}

func (h *Handler) GetBooking(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	b, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Booking not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	if ai.Role != user.RoleAdmin && b.CustomerID != ai.Subject {
		c.JSON(http.StatusNotFound, gin.H{"message": "Booking not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	b, err := h.repo.UpdateStatus(c.Request.Context(), c.Param("id"), Status(req.Status), time.Now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Booking not found"})
		return
	}
	if err != nil {
		// 状态机拒绝的流转按入参错误返回
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking status updated", "data": b})
}

type advanceStageRequest struct {
	Stage string `json:"stage"`
}

func (h *Handler) AdvanceJobStage(c *gin.Context) {
	var req advanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	j, err := h.repo.AdvanceJobStage(c.Request.Context(), c.Param("jobId"), JobStage(req.Stage))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job stage updated", "data": j})
}
