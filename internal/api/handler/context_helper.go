package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"activity-points/backend/internal/access"
	"activity-points/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetActor 提取调用者身份（用户、归一化角色、所属班级）
func MustGetActor(c *gin.Context) (access.Actor, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return access.Actor{}, false
	}
	role := c.GetString("role")
	if role == "" {
		response.Unauthorized(c, 10002, "未认证")
		return access.Actor{}, false
	}
	return access.Actor{
		ID:      userID,
		Role:    access.Role(role),
		ClassID: c.GetString("class_id"),
	}, true
}

// bindJSON 绑定并校验请求体；失败时写入 400 / 413 并返回 false
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return false
		}
		response.BadRequest(c, 10001, "参数校验失败")
		return false
	}
	return true
}
