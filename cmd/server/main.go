package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinichub/access-backend/internal/config"
	"github.com/clinichub/access-backend/internal/database"
	"github.com/clinichub/access-backend/internal/handler"
	"github.com/clinichub/access-backend/internal/middleware"
	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/redis"
	"github.com/clinichub/access-backend/internal/repository"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	// 初始化 Redis 连接
	if err := redis.Init(&cfg.Redis); err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	defer redis.Close()
	log.Println("Redis 连接成功")

	// 自动迁移数据库表
	if err := database.AutoMigrate(
		&model.User{},
		&model.Module{},
		&model.Role{},
		&model.Permission{},
		&model.AuditEvent{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库迁移完成")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(database.GetDB())
	moduleRepo := repository.NewModuleRepository(database.GetDB())
	roleRepo := repository.NewRoleRepository(database.GetDB())
	permRepo := repository.NewPermissionRepository(database.GetDB())
	auditRepo := repository.NewAuditRepository(database.GetDB())

	logger := middleware.GetLogger()

	// 初始化审计服务
	auditService := service.NewAuditService(auditRepo, logger, cfg.Access.AuditQueueCapacity)

	// 初始化目录服务并加载快照
	registry := service.NewRegistry(moduleRepo, roleRepo)
	if err := registry.Reload(context.Background()); err != nil {
		log.Fatalf("加载模块角色目录失败: %v", err)
	}

	// 初始化权限引擎
	engine := service.NewPermissionEngine(registry, permRepo, redis.GetClient(), auditService, logger, service.EngineConfig{
		BypassRoles:       cfg.Access.AdminBypassRoles,
		Deadline:          cfg.Access.EngineDeadline,
		CacheTTL:          cfg.Access.CacheTTL,
		AllowSamplingRate: cfg.Access.AuditAllowSamplingRate,
	})

	// 初始化权限管理、模板解析与认证服务
	adminService := service.NewAccessAdminService(moduleRepo, roleRepo, permRepo, registry, engine, auditService, logger)
	resolver := service.NewTemplateResolver(registry, cfg.Access.TemplateRoot)
	authService := service.NewAuthService(userRepo)
	tokenService := service.NewTokenService(&service.TokenServiceConfig{
		Secret:       cfg.JWT.Secret,
		Issuer:       cfg.JWT.Issuer,
		AccessExpiry: cfg.JWT.AccessExpiry,
	})

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService, tokenService)
	accessHandler := handler.NewAccessHandler(adminService, registry, resolver)
	auditHandler := handler.NewAuditHandler(auditService)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		if err := database.Ping(); err != nil {
			dbStatus = "error"
		}

		redisStatus := "ok"
		redisClient := redis.GetClient()
		if redisClient == nil {
			redisStatus = "error"
		} else if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error"
		}

		response.Success(c, gin.H{
			"status":   "ok",
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"redis":    redisStatus,
		})
	})

	// API 路由组
	api := router.Group("/api/v1")
	{
		// 认证路由（公开）
		api.POST("/auth/login", authHandler.Login)

		// 需要认证的路由
		authRequired := api.Group("")
		authRequired.Use(middleware.JWTAuth(tokenService))
		{
			authRequired.GET("/auth/me", authHandler.GetCurrentUser)
			authRequired.GET("/templates/resolve", accessHandler.ResolveTemplate)

			// 权限管理路由，全部以 access_control 模块为守卫
			ac := authRequired.Group("")
			{
				read := ac.Group("")
				read.Use(middleware.RequireModule(engine, model.ModuleAccessControl, model.CapAccess))
				{
					read.GET("/modules", accessHandler.ListModules)
					read.GET("/roles", accessHandler.ListRoles)
					read.GET("/roles/:key/matrix", accessHandler.GetMatrix)
					read.GET("/audit", auditHandler.List)
				}

				write := ac.Group("")
				write.Use(middleware.RequireModule(engine, model.ModuleAccessControl, model.CapModify))
				{
					write.POST("/modules", accessHandler.CreateModule)
					write.PUT("/modules/:key", accessHandler.UpdateModule)
					write.POST("/roles", accessHandler.CreateRole)
					write.PUT("/roles/:key", accessHandler.UpdateRole)
					write.PUT("/roles/:key/matrix", accessHandler.UpdateMatrix)
					write.POST("/seed", accessHandler.SeedDefaults)
				}

				del := ac.Group("")
				del.Use(middleware.RequireModule(engine, model.ModuleAccessControl, model.CapDelete))
				{
					del.DELETE("/modules/:key", accessHandler.DeleteModule)
					del.DELETE("/roles/:key", accessHandler.DeleteRole)
				}
			}
		}
	}

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		log.Printf("服务启动，监听地址: %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，等待 5 秒
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭失败: %v", err)
	}

	// 冲刷审计队列
	if err := auditService.Close(cfg.Access.AuditFlushGrace); err != nil {
		log.Printf("审计队列冲刷未完成: %v", err)
	}

	// 关闭数据库和 Redis 连接
	database.Close()
	redis.Close()

	log.Println("服务已关闭")
}
