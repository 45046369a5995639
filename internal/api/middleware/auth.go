package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"activity-points/backend/internal/access"
	"activity-points/backend/pkg/jwt"
	"activity-points/backend/pkg/response"
)

// 上下文键
const (
	ContextUserID  = "user_id"
	ContextRole    = "role"
	ContextClassID = "class_id"
)

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token，角色在此处归一化
func JWTAuth(jwtMgr *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "缺少认证头")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, 10002, "认证头格式无效")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, string(access.NormalizeRole(claims.Role)))
		c.Set(ContextClassID, claims.ClassID)

		c.Next()
	}
}

// RequirePermission 按权限矩阵校验当前角色能否对资源执行操作
func RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		if !access.HasPermission(access.Role(role), resource, action) {
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}

		c.Next()
	}
}
