package app

import (
	"paes_math_backend/docs"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/middleware"
	"paes_math_backend/internal/model"
	"paes_math_backend/pkg/monitoring"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// AI 接口：体验账号不可用，按用户单独限流
		a.registerAIRoutes(authGroup, c, cfg)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)

		// 管理员相关接口
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		auth := public.Group("/auth")
		{
			auth.POST("/register", c.auth.Register)
			auth.POST("/login", c.auth.Login)
			auth.POST("/demo", c.auth.Demo)
		}

		curriculum := public.Group("/curriculum")
		{
			curriculum.GET("/tree", c.curriculum.Tree)
			curriculum.GET("/axes", c.curriculum.ListAxes)
			curriculum.GET("/units", c.curriculum.ListUnits)
			curriculum.GET("/units/:id", c.curriculum.GetUnit)
			curriculum.GET("/units/:id/resources", c.unitResource.List)
		}

		// 证书公开验证
		public.GET("/certificates/verify/:code", c.certificate.Verify)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/user/profile", c.auth.Profile)
	rg.PUT("/user/profile", c.auth.UpdateProfile)
	rg.PUT("/user/password", middleware.DemoRestriction(), c.auth.ChangePassword)

	// 练习
	rg.GET("/practice/questions", c.question.Practice)
	rg.GET("/practice/questions/:id", c.question.GetPracticeQuestion)
	rg.POST("/practice/questions/:id/answer", c.question.Answer)

	// 知识掌握声明
	rg.GET("/knowledge", c.knowledge.List)
	rg.GET("/knowledge/summary", c.knowledge.Summary)
	rg.PUT("/knowledge", c.knowledge.Declare)
	rg.DELETE("/knowledge/:unitId", c.knowledge.Delete)

	// 模拟考
	sessions := rg.Group("/live-sessions")
	{
		sessions.GET("", c.liveSession.ListUpcoming)
		sessions.GET("/:id", c.liveSession.Get)
		sessions.POST("/:id/register", c.liveSession.Register)
		sessions.DELETE("/:id/register", c.liveSession.Unregister)
		sessions.POST("/:id/join", c.liveSession.Join)
		sessions.GET("/:id/questions", c.liveSession.Questions)
		sessions.POST("/:id/submit", c.liveSession.Submit)
		sessions.GET("/:id/result", c.liveSession.MyResult)
		sessions.GET("/:id/ws", c.liveSession.Ws)
	}

	// 证书
	rg.GET("/certificates", c.certificate.ListMine)
	rg.GET("/certificates/:code/download", c.certificate.Download)

	// 分析
	rg.GET("/analytics/overview", c.analytics.GetOverview)
}

func (a *App) registerAIRoutes(rg *gin.RouterGroup, c *controllers, cfg *config.Config) {
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	ai := rg.Group("/ai")
	ai.Use(middleware.DemoRestriction(), a.newLimiter(cfg.RateLimit.AIMaxRequests, window, userKey).Middleware())
	{
		ai.POST("/diagnostics", c.diagnostic.Start)
		ai.GET("/diagnostics", c.diagnostic.List)
		ai.GET("/diagnostics/:id", c.diagnostic.Get)
		ai.POST("/diagnostics/:id/answer", c.diagnostic.Answer)
		ai.POST("/diagnostics/:id/abandon", c.diagnostic.Abandon)

		ai.POST("/tutor/conversations", c.tutor.StartConversation)
		ai.GET("/tutor/conversations", c.tutor.ListConversations)
		ai.GET("/tutor/conversations/:id", c.tutor.GetConversation)
		ai.POST("/tutor/conversations/:id/messages", c.tutor.SendMessage)
		ai.DELETE("/tutor/conversations/:id", c.tutor.DeleteConversation)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("/teacher")
	teacher.Use(middleware.DemoRestriction(), middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		// 课程体系
		teacher.POST("/curriculum/axes", c.curriculum.CreateAxis)
		teacher.PUT("/curriculum/axes/:id", c.curriculum.UpdateAxis)
		teacher.DELETE("/curriculum/axes/:id", c.curriculum.DeleteAxis)
		teacher.POST("/curriculum/units", c.curriculum.CreateUnit)
		teacher.PUT("/curriculum/units/:id", c.curriculum.UpdateUnit)
		teacher.DELETE("/curriculum/units/:id", c.curriculum.DeleteUnit)
		teacher.POST("/curriculum/topics", c.curriculum.CreateTopic)
		teacher.PUT("/curriculum/topics/:id", c.curriculum.UpdateTopic)
		teacher.DELETE("/curriculum/topics/:id", c.curriculum.DeleteTopic)

		// 题库
		teacher.GET("/questions", c.question.List)
		teacher.POST("/questions", c.question.Create)
		teacher.POST("/questions/import", c.question.Import)
		teacher.GET("/questions/export", c.question.Export)
		teacher.GET("/questions/:id", c.question.Get)
		teacher.PUT("/questions/:id", c.question.Update)
		teacher.DELETE("/questions/:id", c.question.Delete)

		// 学习资源
		teacher.POST("/resources/upload", c.unitResource.Upload)
		teacher.POST("/resources/link", c.unitResource.AddLink)
		teacher.DELETE("/resources/:id", c.unitResource.Delete)

		// 模拟考场次
		teacher.GET("/live-sessions", c.liveSession.ListMine)
		teacher.POST("/live-sessions", c.liveSession.Create)
		teacher.PUT("/live-sessions/:id", c.liveSession.Update)
		teacher.DELETE("/live-sessions/:id", c.liveSession.Delete)
		teacher.POST("/live-sessions/:id/start", c.liveSession.Start)
		teacher.POST("/live-sessions/:id/finish", c.liveSession.Finish)
		teacher.POST("/live-sessions/:id/cancel", c.liveSession.Cancel)
		teacher.GET("/live-sessions/:id/results", c.liveSession.Results)
		teacher.GET("/live-sessions/:id/stats", c.analytics.GetSessionStats)
		teacher.GET("/live-sessions/:id/export", c.analytics.ExportSessionResults)
	}
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.DemoRestriction(), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/users", c.user.ListUsers)
		admin.GET("/users/:id", c.user.GetUser)
		admin.PUT("/users/:id", c.user.UpdateUser)
		admin.POST("/users/:id/disable", c.user.DisableUser)
		admin.POST("/users/:id/reset-password", c.user.ResetPassword)
		admin.DELETE("/users/:id", c.user.DeleteUser)
		admin.POST("/teachers", c.user.ProvisionTeacher)
		admin.GET("/analytics", c.analytics.GetPlatformOverview)
	}
}
