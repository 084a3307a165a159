package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/config"
	"progress-tracker-backend/internal/database"
	"progress-tracker-backend/internal/handlers"
	"progress-tracker-backend/internal/logger"
	"progress-tracker-backend/internal/middleware"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/services"
	"progress-tracker-backend/internal/supabase"
	"progress-tracker-backend/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// the logger depends on the environment, which is not known yet
		logger.New("development").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Environment)
	defer log.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	// Database and migrations
	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()

	migrator, err := database.NewMigrator(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to initialize migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	migrator.Close()

	// Supabase clients
	supabaseClient, err := supabase.NewClient(cfg)
	if err != nil {
		log.Fatal("failed to initialize Supabase client", zap.Error(err))
	}
	storageClient, err := supabaseClient.Storage()
	if err != nil {
		log.Fatal("failed to initialize storage client", zap.Error(err))
	}

	// Realtime fan-out
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable at startup, realtime events will fail until it is", zap.Error(err))
	}
	realtimeClient := supabase.NewRealtimeClient(rdb)

	notifier := notify.NewClient(cfg.NotificationFunctionURL, cfg.SupabasePublishableKey)
	if !notifier.Enabled() {
		log.Info("NOTIFICATION_FUNCTION_URL not set, emails are disabled")
	}

	// Services and handlers
	projectService := services.NewProjectService(dbClient, realtimeClient, notifier, storageClient, log)
	assignmentService := services.NewAssignmentService(dbClient, notifier, log)

	projectsHandler := handlers.NewProjectsHandler(projectService)
	stepsHandler := handlers.NewStepsHandler(projectService)
	assignmentsHandler := handlers.NewAssignmentsHandler(assignmentService)
	portalHandler := handlers.NewPortalHandler(supabaseClient.Portal(), realtimeClient, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health checks (no auth)
	router.GET("/health", handlers.HealthHandler)
	router.GET("/ready", handlers.ReadinessHandler(map[string]handlers.Pinger{
		"database": dbClient,
		"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}))

	// Staff API
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	staff := api.Group("")
	staff.Use(middleware.RequireRole(workflow.RoleMaster, workflow.RoleAdmin, workflow.RoleDirector))

	// Projects
	staff.POST("/projects", projectsHandler.CreateProject)
	staff.GET("/projects", projectsHandler.ListProjects)
	staff.GET("/projects/:project_id", projectsHandler.GetProject)
	staff.PATCH("/projects/:project_id", projectsHandler.UpdateProject)
	staff.DELETE("/projects/:project_id", projectsHandler.DeleteProject)
	staff.GET("/projects/:project_id/milestones", projectsHandler.GetMilestones)
	staff.POST("/projects/:project_id/deliverables", projectsHandler.UploadDeliverable)

	// Steps
	staff.POST("/projects/:project_id/steps", stepsHandler.AddStep)
	staff.PATCH("/projects/:project_id/steps/:order", stepsHandler.UpdateStep)
	staff.PUT("/projects/:project_id/steps/:order/status", stepsHandler.SetStepStatus)
	staff.POST("/projects/:project_id/steps/:order/move", stepsHandler.MoveStep)
	staff.DELETE("/projects/:project_id/steps/:order", stepsHandler.DeleteStep)

	// Members and assignments
	staff.POST("/members", assignmentsHandler.CreateMember)
	staff.GET("/members", assignmentsHandler.ListMembers)
	staff.POST("/projects/:project_id/assignments", assignmentsHandler.CreateAssignment)
	staff.GET("/projects/:project_id/assignments", assignmentsHandler.ListAssignments)

	// Any authenticated member; ownership and review rules are enforced in the service.
	api.PUT("/assignments/:assignment_id/status", assignmentsHandler.UpdateStatus)

	// Client portal (no auth, rate limited per IP)
	portal := router.Group("/portal")
	portal.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.PortalRateLimit, cfg.PortalRateBurst)))
	portal.GET("/clients/:client_id/projects", portalHandler.ListClientProjects)
	portal.GET("/projects/:project_id", portalHandler.GetProject)
	portal.GET("/projects/:project_id/events", portalHandler.StreamProjectEvents)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	// let queued emails go out before the process exits
	projectService.FlushNotifications()
	assignmentService.FlushNotifications()
}
