package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"activity-points/backend/config"
	"activity-points/backend/internal/api/handler"
	"activity-points/backend/internal/api/middleware"
	"activity-points/backend/internal/dto"
	"activity-points/backend/pkg/jwt"
	"activity-points/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)

	if err := dto.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("注册校验规则失败: %w", err)
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	limit := middleware.RateLimit(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	can := middleware.RequirePermission

	// ── API v1（全部需要认证）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 学期模块
		semesters := v1.Group("/semesters")
		{
			semesters.GET("/current", can("semesters", "read"), h.Semester.GetCurrentSemester)
			semesters.PUT("/active", can("semesters", "activate"), limit, h.Semester.ActivateSemester)
			semesters.GET("/status/:classId/:semester", can("semesters", "read"), h.Semester.GetStatus)
			semesters.GET("/snapshot/:classId/:semester", can("semesters", "read"), h.Semester.GetSnapshot)
			semesters.POST("/propose-close", can("semesters", "proposeLock"), limit, h.Semester.ProposeClose)
			semesters.POST("/soft-lock", can("semesters", "softLock"), limit, h.Semester.SoftLock)
			semesters.POST("/rollback", can("semesters", "rollback"), limit, h.Semester.Rollback)
			semesters.POST("/hard-lock", can("semesters", "hardLock"), limit, h.Semester.HardLock)
		}

		// 写入守卫（CRUD 层调用）
		guard := v1.Group("/guard", can("semesters", "guard"))
		{
			guard.POST("/check", h.Guard.Check)
			guard.POST("/check-user", h.Guard.CheckUser)
		}

		// 查询作用域
		scopes := v1.Group("/scopes", can("scopes", "read"))
		{
			scopes.GET("/:resource", h.Scope.GetScope)
			scopes.GET("/:resource/items/:id", h.Scope.CheckItem)
		}
	}

	return r, nil
}
