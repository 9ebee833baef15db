package car

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
)

// Handler 车辆相关 HTTP 接口（CRUD / 过户 / 历史 / 审计）。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 挂载 /api/cars 路由分组。过户与审计查询仅管理员可用。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/cars")
	g.POST("", h.CreateCar)
	g.GET("", httpserver.RequireRoles(user.RoleAdmin), h.ListCars)
	g.GET("/my-cars", h.ListMyCars)
	g.PATCH("/:id", h.UpdateCar)
	g.DELETE("/:id", h.DeleteCar)
	g.POST("/:id/transfer", httpserver.RequireRoles(user.RoleAdmin), h.TransferCar)
	g.GET("/:id/history", h.CarHistory)
	g.GET("/:id/transfers", httpserver.RequireRoles(user.RoleAdmin), h.CarTransfers)
}

func actorFrom(c *gin.Context) (Actor, bool) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		return Actor{}, false
	}
	return Actor{ID: ai.Subject, Role: ai.Role}, true
}

func writeDomainError(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), gin.H{"message": PublicMessage(err)})
}

type createCarRequest struct {
	PlateNo string `json:"plateNo"`
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Year    string `json:"year"`
	Notes   string `json:"notes"`
}

func (h *Handler) CreateCar(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	var req createCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	car, err := h.svc.CreateCar(c.Request.Context(), actor, CreateCarInput{
		PlateNo: req.PlateNo,
		Brand:   req.Brand,
		Model:   req.Model,
		Year:    req.Year,
		Notes:   req.Notes,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Car created successfully", "data": carView(car)})
}

// ListCars 管理端全量列表，支持搜索/分页。
func (h *Handler) ListCars(c *gin.Context) {
	h.listCars(c, "")
}

// ListMyCars 当前用户名下的车辆。
func (h *Handler) ListMyCars(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	h.listCars(c, actor.ID)
}

func (h *Handler) listCars(c *gin.Context, ownerID string) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	cars, total, err := h.svc.ListCars(c.Request.Context(), ListCarsFilter{
		OwnerID: ownerID,
		Search:  c.Query("search"),
		Sort:    c.Query("sort"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	out := make([]gin.H, 0, len(cars))
	for i := range cars {
		out = append(out, carView(&cars[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "count": total, "page": page})
}

type updateCarRequest struct {
	PlateNo string `json:"plateNo"`
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Year    string `json:"year"`
	Notes   string `json:"notes"`
}

func (h *Handler) UpdateCar(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	var req updateCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	err := h.svc.UpdateCar(c.Request.Context(), actor, c.Param("id"), UpdateCarInput{
		PlateNo: req.PlateNo,
		Brand:   req.Brand,
		Model:   req.Model,
		Year:    req.Year,
		Notes:   req.Notes,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Car updated successfully"})
}

func (h *Handler) DeleteCar(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	if err := h.svc.DeleteCar(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Car deleted successfully"})
}

type transferRequest struct {
	NewOwnerID         string `json:"newOwnerId"`
	MoveOpenJobs       bool   `json:"moveOpenJobs"`
	MoveUnpaidInvoices bool   `json:"moveUnpaidInvoices"`
	Reason             string `json:"reason"`
	TransferDate       string `json:"transferDate"`
}

func (h *Handler) TransferCar(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	res, err := h.svc.Transfer(c.Request.Context(), actor, TransferInput{
		CarID:              c.Param("id"),
		NewOwnerID:         req.NewOwnerID,
		MoveOpenJobs:       req.MoveOpenJobs,
		MoveUnpaidInvoices: req.MoveUnpaidInvoices,
		Reason:             req.Reason,
		TransferDate:       req.TransferDate,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CarHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	hist, err := h.svc.GetCarHistory(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) CarTransfers(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	logs, err := h.svc.ListTransfers(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// carView 车辆对外视图。并发令牌仅服务端使用，不对外暴露。
func carView(car *Car) gin.H {
	v := gin.H{
		"id":        car.ID,
		"plateNo":   car.PlateNo,
		"brand":     car.Brand,
		"model":     car.Model,
		"year":      car.Year,
		"notes":     car.Notes,
		"ownerId":   car.OwnerID,
		"createdAt": car.CreatedAt.Unix(),
	}
	if car.Owner.ID != "" {
		v["owner"] = gin.H{"id": car.Owner.ID, "name": car.Owner.Name}
	}
	return v
}
