package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/edudesk/edudesk-api/internal/handler"
	"github.com/edudesk/edudesk-api/internal/middleware"
	"github.com/edudesk/edudesk-api/internal/models"
	"github.com/edudesk/edudesk-api/internal/repository"
	"github.com/edudesk/edudesk-api/internal/service"
	"github.com/edudesk/edudesk-api/pkg/cache"
	"github.com/edudesk/edudesk-api/pkg/config"
	"github.com/edudesk/edudesk-api/pkg/database"
	"github.com/edudesk/edudesk-api/pkg/export"
	"github.com/edudesk/edudesk-api/pkg/logger"
	corsmiddleware "github.com/edudesk/edudesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edudesk/edudesk-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine stays correct without the cache; availability reads
		// just hit the database.
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	txRunner := database.NewRunner(db)

	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, subjectRepo, studentRepo, txRunner, cacheRepo, metricsSvc, cfg.Enrollment.AvailabilityCacheTTL, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, enrollmentRepo, export.NewCSVExporter(), export.NewPDFExporter(), validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	assignmentSvc := service.NewTeacherAssignmentService(assignmentRepo, teacherRepo, subjectRepo, txRunner, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc, enrollmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	assignmentHandler := handler.NewTeacherAssignmentHandler(assignmentSvc)
	userHandler := handler.NewUserHandler(userSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	{
		api.GET("/subjects", subjectHandler.List)
		api.POST("/subjects", staff, subjectHandler.Create)
		api.GET("/subjects/:id", subjectHandler.Get)
		api.PUT("/subjects/:id", staff, subjectHandler.Update)
		api.DELETE("/subjects/:id", staff, subjectHandler.Delete)
		api.GET("/subjects/:id/availability", subjectHandler.Availability)
		api.GET("/subjects/:id/roster/export", subjectHandler.ExportRoster)
		api.GET("/subjects/:id/teachers", assignmentHandler.ListBySubject)

		api.GET("/enrollments", enrollmentHandler.List)
		api.POST("/enrollments", staff, enrollmentHandler.Create)
		api.DELETE("/enrollments/:id", staff, enrollmentHandler.Delete)
		api.GET("/enrollments/duplicate", enrollmentHandler.Duplicate)

		api.GET("/students", studentHandler.List)
		api.POST("/students", staff, studentHandler.Create)
		api.GET("/students/:id", studentHandler.Get)
		api.PUT("/students/:id", staff, studentHandler.Update)

		api.POST("/teacher-assignments", staff, assignmentHandler.Create)
		api.DELETE("/teacher-assignments/:id", staff, assignmentHandler.Delete)

		api.POST("/users", adminOnly, userHandler.Create)
		api.GET("/users/:id", adminOnly, userHandler.Get)
		api.PATCH("/users/:id/active", adminOnly, userHandler.SetActive)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
