package user

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/auth"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/config"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/httpserver"
	"gorm.io/gorm"
)

// Handler 用户相关的 HTTP 接口（注册 / 登录 / 个人信息 / 用户列表）。
type Handler struct {
	repo    *Repo
	authCfg config.AuthConfig
}

func NewHandler(db *gorm.DB, authCfg config.AuthConfig) *Handler {
	return &Handler{
		repo:    NewRepo(db),
		authCfg: authCfg,
	}
}

// RegisterRoutes 挂载 /api/users 路由分组。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/users")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/profile", h.Profile)
	g.GET("", httpserver.RequireRoles(RoleAdmin), h.List)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if name == "" || email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "name/email/password required"})
		return
	}

	// check existence
	if _, err := h.repo.FindByEmail(c.Request.Context(), email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email already exists"})
		return
	} else if err != gorm.ErrRecordNotFound {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	hash, err := HashPassword(req.Password, salt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         RoleCustomer, // 管理员账号由运营侧直接建库
	}
	if err := h.repo.Create(c.Request.Context(), u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email/password required"})
		return
	}

	u, err := h.repo.FindByEmail(c.Request.Context(), email)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	if !VerifyPassword(req.Password, u.PasswordSalt, u.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	token, exp, err := auth.GenerateAccessToken(h.authCfg, u.ID, u.Role, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"expiresAt":   exp.Unix(),
		"user":        toView(u),
	})
}

func (h *Handler) Profile(c *gin.Context) {
	ai, ok := httpserver.AuthFromContext(c)
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing auth"})
		return
	}
	u, err := h.repo.FindByID(c.Request.Context(), ai.Subject)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toView(u)})
}

func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	role := strings.TrimSpace(c.Query("role"))

	users, total, err := h.repo.List(c.Request.Context(), role, (page-1)*size, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, toView(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "count": total, "page": page, "pageSize": size})
}

// toView 序列化给前端的用户视图（永不包含口令散列）。
func toView(u *User) gin.H {
	return gin.H{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"phone":     u.Phone,
		"role":      u.Role,
		"createdAt": u.CreatedAt.Unix(),
	}
}
