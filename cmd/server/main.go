// Package main runs the multi-tenant application HTTP server with WebSocket notifications and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/config"
	"github.com/motorsales/vsms/internal/auctions"
	"github.com/motorsales/vsms/internal/audit"
	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/customers"
	"github.com/motorsales/vsms/internal/dashboard"
	"github.com/motorsales/vsms/internal/documents"
	"github.com/motorsales/vsms/internal/expenses"
	"github.com/motorsales/vsms/internal/insurance"
	"github.com/motorsales/vsms/internal/middleware"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/payments"
	"github.com/motorsales/vsms/internal/payroll"
	"github.com/motorsales/vsms/internal/permissions"
	"github.com/motorsales/vsms/internal/platform"
	"github.com/motorsales/vsms/internal/realtime"
	"github.com/motorsales/vsms/internal/reports"
	"github.com/motorsales/vsms/internal/repossessions"
	"github.com/motorsales/vsms/internal/settings"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/vehicles"
	"github.com/motorsales/vsms/pkg/database"
	"github.com/motorsales/vsms/pkg/logger"
	"github.com/motorsales/vsms/pkg/queue"
	"github.com/motorsales/vsms/pkg/redis"
	"github.com/motorsales/vsms/pkg/response"
	"github.com/motorsales/vsms/pkg/storage"
	"github.com/motorsales/vsms/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.MigrateShared(ctx, pool); err != nil {
		log.Fatal("migrate shared schema", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	loc, err := time.LoadLocation(cfg.Scheduler.TimeZone)
	if err != nil {
		log.Fatal("time zone", zap.String("tz", cfg.Scheduler.TimeZone), zap.Error(err))
	}

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("document storage", zap.Error(err))
	}

	// Tenancy
	directory := tenancy.NewDirectory(
		tenancy.NewPGStore(pool),
		tenancy.NewRedisCache(rdb.Client, cfg.Tenancy.CacheTTL, log),
		tenancy.NewSchemaProvisioner(log, permissions.Seed),
		log,
	)
	router := tenancy.NewRouter(pool, log)

	// Jobs and realtime
	jobQueue := queue.NewQueue(rdb.Client, log)
	jobQueue.SetMaxRetries(cfg.Worker.MaxRetries)
	pubsub := realtime.NewRedisPubSub(rdb.Client, log)
	hub := realtime.NewHub(log, pubsub)
	defer hub.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories take their connection from the request scope.
	userRepo := auth.NewRepository()
	permRepo := permissions.NewRepository()
	settingsRepo := settings.NewRepository()
	auditRepo := audit.NewRepository()
	vehicleRepo := vehicles.NewRepository()
	customerRepo := customers.NewRepository()
	paymentRepo := payments.NewRepository()
	policyRepo := insurance.NewRepository()
	documentRepo := documents.NewRepository()
	notificationRepo := notifications.NewRepository()

	authHandler := auth.NewHandler(userRepo, jwtService, utils.NewPasswords(cfg.JWT.BcryptCost), log)
	permHandler := permissions.NewHandler(permRepo, log)
	settingsHandler := settings.NewHandler(settingsRepo, log)
	auditHandler := audit.NewHandler(auditRepo)
	vehicleHandler := vehicles.NewHandler(vehicleRepo, log)
	customerHandler := customers.NewHandler(customerRepo, log)
	paymentHandler := payments.NewHandler(paymentRepo, log)
	policyHandler := insurance.NewHandler(policyRepo, log)
	documentHandler := documents.NewHandler(documentRepo, settingsRepo, store, log)
	notifier := notifications.NewService(notificationRepo, jobQueue, log)
	notificationHandler := notifications.NewHandler(notificationRepo, notifier, userRepo, log)
	reportHandler := reports.NewHandler(vehicleRepo, settingsRepo, log)
	dashboardHandler := dashboard.NewHandler(dashboard.NewRepository(), settingsRepo, loc, log)
	platformHandler := platform.NewHandler(directory, log)
	auctionHandler := auctions.NewHandler(auctions.NewRepository(), log)
	payrollHandler := payroll.NewHandler(payroll.NewRepository(), log)
	expenseHandler := expenses.NewHandler(expenses.NewRepository(), log)
	repossessionHandler := repossessions.NewHandler(repossessions.NewRepository(), log)

	perm := func(module models.Module, level models.AccessLevel) gin.HandlerFunc {
		return middleware.RequirePermission(permRepo, module, level, log)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(middleware.CORSOptions{
		Origins: cfg.Server.CORSAllowedOrigins,
		MaxAge:  cfg.Server.CORSMaxAge,
	}))
	engine.Use(middleware.Logger(log))
	engine.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	// Health
	engine.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	engine.GET("/ready", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ready"})
	})

	// Platform administration (shared schema)
	platformHandler.Routes(engine.Group("/platform", middleware.PlatformToken(cfg.Platform.AdminToken)))

	// Everything below needs a Host bound to an active tenant.
	site := engine.Group("", tenancy.ResolveHost(directory, log))

	// WebSocket (token in query). Long-lived, so it holds no tenant transaction.
	site.GET("/ws", realtime.ServeWs(hub, jwtService, log))

	scoped := site.Group("", tenancy.ScopeRequests(router, log))
	scoped.POST("/auth/login", authHandler.Login)

	api := scoped.Group("", middleware.JWT(jwtService), audit.Middleware(auditRepo, log))
	{
		api.GET("/me", authHandler.Me)
		api.GET("/dashboard", perm(models.ModuleDashboard, models.AccessView), dashboardHandler.Get)

		// Users and access control (admin)
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)
		api.POST("/users", middleware.RequireRole(models.RoleAdmin), authHandler.Create)
		api.POST("/users/:id/deactivate", middleware.RequireRole(models.RoleAdmin), authHandler.Deactivate)
		api.GET("/permissions", perm(models.ModuleSettings, models.AccessView), permHandler.List)
		api.PUT("/permissions", middleware.RequireRole(models.RoleAdmin), permHandler.Update)
		api.GET("/settings", perm(models.ModuleSettings, models.AccessView), settingsHandler.Get)
		api.PUT("/settings", perm(models.ModuleSettings, models.AccessFull), settingsHandler.Update)

		// Vehicles
		api.GET("/vehicles", perm(models.ModuleVehicles, models.AccessView), vehicleHandler.List)
		api.POST("/vehicles", perm(models.ModuleVehicles, models.AccessEdit), vehicleHandler.Create)
		api.GET("/vehicles/:id", perm(models.ModuleVehicles, models.AccessView), vehicleHandler.GetByID)
		api.PUT("/vehicles/:id", perm(models.ModuleVehicles, models.AccessEdit), vehicleHandler.Update)
		api.DELETE("/vehicles/:id", perm(models.ModuleVehicles, models.AccessFull), vehicleHandler.Delete)

		// Customers
		api.GET("/customers", perm(models.ModuleClients, models.AccessView), customerHandler.List)
		api.POST("/customers", perm(models.ModuleClients, models.AccessEdit), customerHandler.Create)
		api.GET("/customers/:id", perm(models.ModuleClients, models.AccessView), customerHandler.GetByID)
		api.PUT("/customers/:id", perm(models.ModuleClients, models.AccessEdit), customerHandler.Update)
		api.DELETE("/customers/:id", perm(models.ModuleClients, models.AccessFull), customerHandler.Delete)

		// Payments
		api.GET("/payments", perm(models.ModulePayments, models.AccessView), paymentHandler.List)
		api.POST("/payments", perm(models.ModulePayments, models.AccessEdit), paymentHandler.Create)
		api.POST("/payments/:id/pay", perm(models.ModulePayments, models.AccessEdit), paymentHandler.MarkPaid)

		// Insurance
		api.GET("/insurance", perm(models.ModuleInsurance, models.AccessView), policyHandler.List)
		api.POST("/insurance", perm(models.ModuleInsurance, models.AccessEdit), policyHandler.Create)

		// Auctions
		api.GET("/auctions", perm(models.ModuleAuctions, models.AccessView), auctionHandler.List)
		api.POST("/auctions", perm(models.ModuleAuctions, models.AccessEdit), auctionHandler.Create)
		api.GET("/auctions/:id", perm(models.ModuleAuctions, models.AccessView), auctionHandler.GetByID)
		api.PUT("/auctions/:id/status", perm(models.ModuleAuctions, models.AccessFull), auctionHandler.SetStatus)
		api.POST("/auctions/:id/lots", perm(models.ModuleAuctions, models.AccessEdit), auctionHandler.AddLot)
		api.PUT("/auctions/:id/lots/:lot/status", perm(models.ModuleAuctions, models.AccessEdit), auctionHandler.SetLotStatus)
		api.POST("/auctions/:id/lots/:lot/sell", perm(models.ModuleAuctions, models.AccessFull), auctionHandler.Sell)

		// Repossessions
		api.GET("/repossessions", perm(models.ModuleRepossessions, models.AccessView), repossessionHandler.List)
		api.POST("/repossessions", perm(models.ModuleRepossessions, models.AccessEdit), repossessionHandler.Create)
		api.GET("/repossessions/:id", perm(models.ModuleRepossessions, models.AccessView), repossessionHandler.GetByID)
		api.PUT("/repossessions/:id/costs", perm(models.ModuleRepossessions, models.AccessEdit), repossessionHandler.UpdateCosts)
		api.POST("/repossessions/:id/status", perm(models.ModuleRepossessions, models.AccessEdit), repossessionHandler.SetStatus)

		// Payroll and employee loans
		api.GET("/payroll", perm(models.ModulePayroll, models.AccessView), payrollHandler.List)
		api.POST("/payroll", perm(models.ModulePayroll, models.AccessEdit), payrollHandler.Create)
		api.GET("/payroll/:id", perm(models.ModulePayroll, models.AccessView), payrollHandler.GetByID)
		api.POST("/payroll/:id/approve", perm(models.ModulePayroll, models.AccessFull), payrollHandler.Approve)
		api.POST("/payroll/:id/pay", perm(models.ModulePayroll, models.AccessFull), payrollHandler.Pay)
		api.POST("/payroll/:id/cancel", perm(models.ModulePayroll, models.AccessFull), payrollHandler.Cancel)
		api.GET("/employee-loans", perm(models.ModulePayroll, models.AccessView), payrollHandler.Loans)
		api.POST("/employee-loans", perm(models.ModulePayroll, models.AccessEdit), payrollHandler.CreateLoan)
		api.POST("/employee-loans/:id/decision", perm(models.ModulePayroll, models.AccessFull), payrollHandler.DecideLoan)

		// Expenses
		api.GET("/expenses", perm(models.ModuleExpenses, models.AccessView), expenseHandler.List)
		api.GET("/expenses/summary", perm(models.ModuleExpenses, models.AccessView), expenseHandler.Summary)
		api.POST("/expenses", perm(models.ModuleExpenses, models.AccessEdit), expenseHandler.Create)
		api.POST("/expenses/:id/decision", perm(models.ModuleExpenses, models.AccessFull), expenseHandler.Decide)
		api.DELETE("/expenses/:id", perm(models.ModuleExpenses, models.AccessEdit), expenseHandler.Delete)

		// Documents
		api.GET("/documents", perm(models.ModuleDocuments, models.AccessView), documentHandler.List)
		api.POST("/documents", perm(models.ModuleDocuments, models.AccessEdit), documentHandler.Upload)
		api.GET("/documents/:id/url", perm(models.ModuleDocuments, models.AccessView), documentHandler.DownloadURL)
		api.GET("/documents/:id/download", perm(models.ModuleDocuments, models.AccessView), documentHandler.Download)
		api.DELETE("/documents/:id", perm(models.ModuleDocuments, models.AccessFull), documentHandler.Delete)

		// Notifications (own inbox needs no module permission)
		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		api.POST("/notifications", perm(models.ModuleNotifications, models.AccessEdit), notificationHandler.Send)

		// Audit and reports
		api.GET("/audit", perm(models.ModuleAudit, models.AccessView), auditHandler.List)
		api.GET("/reports/inventory.xlsx", perm(models.ModuleReports, models.AccessView), reportHandler.Inventory)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Storage.Backend != "s3" {
		local, err := storage.NewLocal(cfg.Storage.LocalDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	s3, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		Bucket:               cfg.AWS.DocumentsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, log)
	if err != nil {
		return nil, err
	}
	return s3, nil
}
