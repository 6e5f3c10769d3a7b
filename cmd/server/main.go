package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/config"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/handler"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	// Persistence: Postgres when a DSN is configured, otherwise in-memory.
	var (
		rbacStore      service.RBACStore
		orderStore     service.RecordStore
		portfolioStore service.RecordStore
		auditRepo      service.AuditRepo
	)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Info("connected to postgres")
		rbacStore = repository.NewPostgresRBACStore(db)
		orderStore = repository.NewPostgresOrderStore(db)
		portfolioStore = repository.NewPostgresPortfolioStore(db)
		auditRepo = repository.NewPostgresAuditRepo(db)
	} else {
		logger.Warn("no database configured, state is in-memory only")
		rbacStore = repository.NewMemoryRBACStore()
		orderStore = repository.NewMemoryRecordStore()
		portfolioStore = repository.NewMemoryRecordStore()
	}

	// Redis carries the shared grants cache and a recent-events audit mirror.
	cacheTTL := time.Duration(cfg.Permissions.CacheTTLMinutes) * time.Minute
	var grantsCache service.GrantsCache
	var auditMirror service.AuditRepo
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("connected to redis")
			grantsCache = repository.NewRedisGrantsCache(redisClient, cacheTTL)
			auditMirror = repository.NewRedisAuditRepo(redisClient, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
		} else {
			logger.Error("failed to connect to redis, using in-process cache", "error", err.Error())
		}
	}
	if grantsCache == nil {
		grantsCache = repository.NewMemoryGrantsCache(cacheTTL)
	}

	ctx := context.Background()
	if err := service.Seed(ctx, rbacStore, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminAPIKey); err != nil {
		log.Fatalf("Failed to seed RBAC catalog: %v", err)
	}

	auditSvc, err := service.NewAuditService(service.AuditOptions{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
		LogDir:    cfg.Audit.LogDir,
	}, auditRepo, auditMirror)
	if err != nil {
		log.Fatalf("Failed to initialize audit recorder: %v", err)
	}

	resolver := service.NewPermissionResolver(rbacStore, grantsCache)
	actorSvc := service.NewActorService(rbacStore)
	adminSvc := service.NewAdminService(rbacStore, resolver, auditSvc)

	engine := service.NewWorkflowEngine(resolver, rbacStore, auditSvc)
	engine.RegisterStore("order", orderStore)
	engine.RegisterStore("portfolio", portfolioStore)

	idempotencyStore := middleware.NewInMemIdempotencyStore()

	authHandler := handler.NewAuthHandler(actorSvc, resolver)
	orderHandler := handler.NewOrderHandler(engine)
	portfolioHandler := handler.NewPortfolioHandler(engine)
	auditHandler := handler.NewAuditHandler(auditSvc)
	adminHandler := handler.NewAdminHandler(adminSvc, auditSvc)

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "tms"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuditMiddleware(auditSvc))
	v1.Use(middleware.AuthMiddleware(actorSvc))
	v1.Use(middleware.RateLimitMiddleware(cfg.RateLimit.QPS, cfg.RateLimit.Burst))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.POST("/auth/login", authHandler.Login)
		v1.POST("/auth/logout", authHandler.Logout)
		v1.GET("/auth/me", authHandler.Me)

		orders := v1.Group("/orders")
		{
			orders.GET("", middleware.RequireAnyPermission(resolver, service.ViewCodes("order")...), orderHandler.List)
			orders.GET("/:id", middleware.RequireAnyPermission(resolver, service.ViewCodes("order")...), orderHandler.Get)
			orders.POST("", orderHandler.Create)
			orders.PATCH("/:id", orderHandler.Edit)
			orders.DELETE("/:id", orderHandler.Delete)
			orders.POST("/:id/submit", orderHandler.Submit)
			orders.POST("/:id/approve", orderHandler.Approve)
			orders.POST("/:id/reject", orderHandler.Reject)
		}

		portfolios := v1.Group("/portfolios")
		{
			portfolios.GET("", middleware.RequireAnyPermission(resolver, service.ViewCodes("portfolio")...), portfolioHandler.List)
			portfolios.GET("/:id", middleware.RequireAnyPermission(resolver, service.ViewCodes("portfolio")...), portfolioHandler.Get)
			portfolios.POST("", portfolioHandler.Create)
			portfolios.PATCH("/:id", portfolioHandler.Edit)
			portfolios.DELETE("/:id", portfolioHandler.Delete)
			portfolios.POST("/:id/submit", portfolioHandler.Submit)
			portfolios.POST("/:id/approve", portfolioHandler.Approve)
			portfolios.POST("/:id/reject", portfolioHandler.Reject)
		}

		audit := v1.Group("/audit")
		audit.Use(middleware.RequireAnyPermission(resolver, "view_audit", "manage_rbac"))
		{
			audit.GET("", auditHandler.Query)
			audit.GET("/history/:type/:id", auditHandler.History)
			audit.GET("/export", middleware.RequireAnyPermission(resolver, "export_audit", "manage_rbac"), auditHandler.ExportCSV)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAnyPermission(resolver, "manage_rbac"))
		{
			admin.POST("/actors", adminHandler.CreateActor)
			admin.PUT("/actors/:id/active", adminHandler.SetActorActive)
			admin.POST("/actors/:id/roles", adminHandler.AssignRole)
			admin.DELETE("/actors/:id/roles/:role", adminHandler.RevokeRole)
			admin.GET("/roles", adminHandler.ListRoles)
			admin.POST("/roles", adminHandler.CreateRole)
			admin.PUT("/roles/:code/active", adminHandler.SetRoleActive)
			admin.PUT("/roles/:code/permissions", adminHandler.SetRolePermissions)
			admin.GET("/permissions", adminHandler.ListPermissions)
			admin.POST("/permissions", adminHandler.UpsertPermission)
			admin.PUT("/permissions/:code/active", adminHandler.SetPermissionActive)
			admin.POST("/audit/:id/approval", adminHandler.ResolveApproval)
			admin.POST("/cache/invalidate", adminHandler.InvalidateCache)
		}
	}

	// Retention: drop audit events past the configured horizon.
	stopRetention := make(chan struct{})
	if cfg.Database.AuditRetentionDays > 0 {
		go func() {
			interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
			if interval <= 0 {
				interval = time.Hour
			}
			horizon := time.Duration(cfg.Database.AuditRetentionDays) * 24 * time.Hour
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := auditSvc.Cleanup(context.Background(), horizon); err != nil {
						logger.Error("audit retention cleanup failed", "error", err.Error())
					}
				case <-stopRetention:
					return
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("trade management service started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(stopRetention)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	auditSvc.Close()

	logger.Info("server exiting")
}
