package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/liverlink/liverlink-backend/internal/handlers"
	"github.com/liverlink/liverlink-backend/internal/middleware"
)

type RouterConfig struct {
	AllowedOrigins    string
	OperatorAuth      *middleware.OperatorAuth
	DonorHandler      *handlers.DonorHandler
	PatientHandler    *handlers.PatientHandler
	AllocationHandler *handlers.AllocationHandler
	SSEHandler        *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("liverlink-backend"))

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if cfg.AllowedOrigins != "" {
		origins = strings.Split(cfg.AllowedOrigins, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/sse/stream", cfg.SSEHandler.Stream)

	api := router.Group("/api")
	// Reads
	api.GET("/donors", cfg.DonorHandler.ListDonors)
	api.GET("/donors/:qr", cfg.DonorHandler.GetDonorByQR)
	api.GET("/donors/:qr/run", cfg.DonorHandler.GetLatestRunByQR)
	api.GET("/patients", cfg.PatientHandler.ListWaitlist)
	api.GET("/patients/:id", cfg.PatientHandler.GetPatient)
	api.GET("/runs", cfg.AllocationHandler.ListRuns)
	api.GET("/runs/:id", cfg.AllocationHandler.GetRun)

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.OperatorAuth.RequireOperator())
	// Registries
	protected.POST("/donors", cfg.DonorHandler.CreateDonor)
	protected.POST("/patients", cfg.PatientHandler.CreatePatient)
	// Allocation
	protected.POST("/donors/:qr/allocate", cfg.DonorHandler.AllocateByQR)
	protected.POST("/runs/:id/contact", cfg.AllocationHandler.ContactCandidate)
	protected.POST("/runs/:id/accept", cfg.AllocationHandler.AcceptCandidate)

	return router
}
