package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushq/registrar-api/api/swagger"
	"github.com/campushq/registrar-api/internal/handler"
	"github.com/campushq/registrar-api/internal/middleware"
	"github.com/campushq/registrar-api/internal/repository"
	"github.com/campushq/registrar-api/internal/service"
	"github.com/campushq/registrar-api/pkg/cache"
	"github.com/campushq/registrar-api/pkg/config"
	"github.com/campushq/registrar-api/pkg/database"
	"github.com/campushq/registrar-api/pkg/export"
	"github.com/campushq/registrar-api/pkg/logger"
	corsmiddleware "github.com/campushq/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/registrar-api/pkg/middleware/requestid"
)

// @title CampusHQ Registrar API
// @version 1.0.0
// @description Enrollment ledger, grade aggregation and transcripts
// @BasePath /api/v1
// @schemes http

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
		// The portal stays up without Redis; reads just skip the cache.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, metricsSvc, logr)
	defer cacheRepo.Close() //nolint:errcheck

	registrationRepo := repository.NewRegistrationRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	enrollmentSvc := service.NewEnrollmentService(registrationRepo, sectionRepo, semesterRepo, courseRepo, cacheRepo, cfg.Roster.CacheTTL, metricsSvc, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, registrationRepo, sectionRepo, nil, logr)
	transcriptSvc := service.NewTranscriptService(gradeRepo, export.NewCSVExporter(), export.NewPDFExporter(), metricsSvc, logr)
	sectionSvc := service.NewSectionService(sectionRepo, courseRepo, semesterRepo, registrationRepo, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, departmentRepo, nil, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, nil, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, nil, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, cacheRepo, cfg.Announcements.CacheTTL, nil, logr)

	handlers := handler.Handlers{
		Registrations: handler.NewRegistrationHandler(enrollmentSvc),
		Grades:        handler.NewGradeHandler(gradeSvc),
		Transcripts:   handler.NewTranscriptHandler(transcriptSvc),
		Sections:      handler.NewSectionHandler(sectionSvc),
		Courses:       handler.NewCourseHandler(courseSvc),
		Departments:   handler.NewDepartmentHandler(departmentSvc),
		Semesters:     handler.NewSemesterHandler(semesterSvc),
		Announcements: handler.NewAnnouncementHandler(announcementSvc),
	}

	verifier := middleware.NewTokenVerifier(cfg.Identity.JWTSecret, cfg.Identity.Issuer)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, verifier, metricsSvc)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
