package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distill-go/internal/bootstrap"
	"distill-go/internal/config"
	"distill-go/internal/models"
	"distill-go/internal/repository"
	"distill-go/internal/router"
	"distill-go/internal/service"
	"distill-go/internal/utils"
)

func main() {
	configFile := flag.String("config", "./config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置（从项目根目录读取）
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := config.ValidateServer(cfg); err != nil {
		log.Fatalf("服务端配置无效: %v", err)
	}

	// 初始化日志
	logger := bootstrap.NewLogger(cfg, os.Stdout)

	// 初始化数据库
	if err := models.InitDB(cfg); err != nil {
		logger.Fatalf("初始化数据库失败: %v", err)
	}
	db := models.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化Redis（可选）
	redisClient, err := bootstrap.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatalf("初始化Redis失败: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := bootstrap.NewStore(cfg, redisClient, logger)
	if err != nil {
		logger.Fatalf("初始化示范缓存失败: %v", err)
	}
	defer store.Close()

	teacher, err := bootstrap.NewTeacher(cfg, redisClient, logger)
	if err != nil {
		logger.Fatalf("初始化教师模型失败: %v", err)
	}

	// 初始化Repository
	runRepo := repository.NewRunRepository(db)
	recordRepo := repository.NewRunRecordRepository(db)
	skipRepo := repository.NewSkipEventRepository(db)

	// 初始化工具
	jwtManager := utils.NewJWTManager(
		cfg.JWT.SecretKey,
		cfg.JWT.Algorithm,
		cfg.JWT.GetExpireDuration(),
	)

	// 初始化Service
	authService, err := service.NewAuthService(jwtManager, cfg)
	if err != nil {
		logger.Fatalf("初始化认证服务失败: %v", err)
	}
	runManager := service.NewRunManager(runRepo, recordRepo, skipRepo, teacher, store, cfg, logger)

	// 设置路由
	r := router.SetupRouter(router.Dependencies{
		Config:      cfg,
		JWTManager:  jwtManager,
		Logger:      logger,
		AuthService: authService,
		RunManager:  runManager,
		Store:       store,
	})

	addr := cfg.Server.GetAddress()
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Infof("服务器启动在 %s", addr)
		if cfg.Server.ProductionMode {
			logger.Info("生产模式")
		} else {
			logger.Infof("开发模式: 管理员账号 %s, 教师模型 %s (%s)", cfg.Admin.Username, cfg.Teacher.Model, cfg.Teacher.Provider)
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("启动服务器失败: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("收到退出信号，正在停止运行中的任务")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runManager.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("等待运行退出超时")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("关闭HTTP服务失败")
	}
	logger.Info("服务器已退出")
}
