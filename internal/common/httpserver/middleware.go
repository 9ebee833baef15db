package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/auth"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/config"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/logger"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/middleware"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const authInfoKey = "httpserver.auth_info"

// AuthInfo 从 JWT 中解析出的最小用户信息（放入请求上下文，供业务侧使用）。
type AuthInfo struct {
	Subject string // 用户 ID
	Role    string // 角色（ADMIN / CUSTOMER）
}

// AuthFromContext 从请求上下文中取出鉴权信息。
func AuthFromContext(c *gin.Context) (AuthInfo, bool) {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return AuthInfo{}, false
	}
	ai, ok := v.(AuthInfo)
	return ai, ok
}

// SetAuthInfo 仅供测试注入鉴权信息。
func SetAuthInfo(c *gin.Context, ai AuthInfo) {
	c.Set(authInfoKey, ai)
}

// Recovery 防止 panic 直接把进程打崩，并记录栈信息。
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Errorf("panic in http handler path=%s err=%v stack=%s", c.Request.URL.Path, r, string(debug.Stack()))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong"})
			}
		}()
		c.Next()
	}
}

// AccessLog 记录每个 HTTP 请求的耗时/状态。
func AccessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if log == nil {
			return
		}
		fields := map[string]interface{}{
			"method": c.Request.Method,
			"path":   path,
			"status": c.Writer.Status(),
			"cost":   time.Since(start).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.WithFields(fields).Warn("http request failed")
		} else {
			log.WithFields(fields).Info("http request ok")
		}
	}
}

// Tracing 基于 OpenTracing 的最小 HTTP server 中间件：
// - 从请求头提取 span context（uber-trace-id / traceparent 等，取决于上游注入格式）
// - 创建 server span，并注入到 request ctx，方便业务侧 StartSpanFromContext 使用
func Tracing(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracer := opentracing.GlobalTracer()

		var parent opentracing.SpanContext
		if sc, err := tracer.Extract(opentracing.HTTPHeaders,
			opentracing.HTTPHeadersCarrier(c.Request.Header)); err == nil {
			parent = sc
		}

		operation := c.Request.Method + " " + c.FullPath()
		var span opentracing.Span
		if parent != nil {
			span = tracer.StartSpan(operation, ext.RPCServerOption(parent))
		} else {
			span = tracer.StartSpan(operation)
		}
		defer span.Finish()

		ext.SpanKindRPCServer.Set(span)
		ext.HTTPMethod.Set(span, c.Request.Method)
		ext.HTTPUrl.Set(span, c.Request.URL.Path)
		if serviceName != "" {
			span.SetTag("service", serviceName)
		}

		c.Request = c.Request.WithContext(opentracing.ContextWithSpan(c.Request.Context(), span))
		c.Next()

		ext.HTTPStatusCode.Set(span, uint16(c.Writer.Status()))
	}
}

// JWTAuth JWT 鉴权中间件：
// - 从 `Authorization: Bearer <token>` 读取 token
// - 校验签名与标准字段，解析结果写入请求上下文
// - cfg.PublicPaths 中的路径直接放行
func JWTAuth(cfg config.AuthConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		if isPublicPath(cfg.PublicPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			if log != nil {
				log.Warn("auth enabled but jwt_secret is empty")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "auth not configured"})
			return
		}

		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing authorization"})
			return
		}
		tokenStr := raw
		if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
			tokenStr = strings.TrimSpace(tokenStr[len("bearer "):])
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid authorization"})
			return
		}

		claims, err := auth.ParseAccessToken(cfg, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		c.Set(authInfoKey, AuthInfo{
			Subject: claims.Subject,
			Role:    claims.Role,
		})
		c.Next()
	}
}

// RequireRoles 基于角色的访问控制：要求当前用户角色命中给定集合之一。
// 路由注册处按需挂载（对应原有的 authorizePermissions 语义）。
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ai, ok := AuthFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing auth context"})
			return
		}
		if hasRole(ai.Role, roles) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "permission denied"})
	}
}

// RateLimit 限流中间件（超限返回 429）。
func RateLimit(limiter middleware.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.Request.Context()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
	}
}

func hasRole(got string, required []string) bool {
	got = strings.TrimSpace(strings.ToLower(got))
	if got == "" || len(required) == 0 {
		return false
	}
	for _, r := range required {
		if strings.TrimSpace(strings.ToLower(r)) == got {
			return true
		}
	}
	return false
}

func isPublicPath(public []string, path string) bool {
	if path == "" || len(public) == 0 {
		return false
	}
	for _, p := range public {
		if strings.TrimSpace(p) == path {
			return true
		}
	}
	return false
}
