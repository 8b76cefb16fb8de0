package router

import (
	"distill-go/internal/cache"
	"distill-go/internal/config"
	"distill-go/internal/handler"
	"distill-go/internal/middleware"
	"distill-go/internal/service"
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies 路由依赖的服务
type Dependencies struct {
	Config      *config.Config
	JWTManager  *utils.JWTManager
	Logger      *logrus.Logger
	AuthService *service.AuthService
	RunManager  *service.RunManager
	Store       cache.Store
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	// 设置Gin模式
	if cfg.Server.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg))

	// 健康检查
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "教师蒸馏数据生成服务 API",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 初始化Handler
	authHandler := handler.NewAuthHandler(deps.AuthService)
	runHandler := handler.NewRunHandler(deps.RunManager, deps.Logger)
	cacheHandler := handler.NewCacheHandler(deps.Store, cfg.Generation.DefaultRequirements)
	datasetHandler := handler.NewDatasetHandler(cfg.Output.Path, cfg.Output.GetRoot())

	// API路由组
	api := r.Group("/api")
	{
		// 公开路由
		api.POST("/login", authHandler.Login)

		// 认证路由
		authorized := api.Group("")
		authorized.Use(middleware.AuthMiddleware(deps.JWTManager))
		{
			authorized.GET("/me", authHandler.GetMe)

			// 运行查询
			authorized.GET("/runs", runHandler.ListRuns)
			authorized.GET("/runs/:run_id", runHandler.GetRun)
			authorized.GET("/runs/:run_id/progress", runHandler.GetProgress)
			authorized.GET("/runs/:run_id/records", runHandler.ListRecords)
			authorized.GET("/runs/:run_id/skips", runHandler.ListSkips)

			// 缓存与数据集
			authorized.GET("/cache/lookup", cacheHandler.Lookup)
			authorized.GET("/cache/stats", cacheHandler.Stats)
			authorized.GET("/dataset/stats", datasetHandler.Stats)
			authorized.GET("/dataset/records", datasetHandler.Records)
			authorized.GET("/dataset/export", datasetHandler.Export)

			// 写操作需要管理员
			adminGroup := authorized.Group("")
			adminGroup.Use(middleware.AdminMiddleware())
			{
				adminGroup.POST("/runs", runHandler.StartRun)
				adminGroup.POST("/runs/:run_id/stop", runHandler.StopRun)
			}
		}
	}

	return r
}
