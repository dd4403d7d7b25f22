package api

import (
	"github.com/gin-gonic/gin"
	"github.com/kevinzhou/applyflow/internal/api/handler"
	"github.com/kevinzhou/applyflow/internal/api/middleware"
	"github.com/kevinzhou/applyflow/internal/config"
	"github.com/kevinzhou/applyflow/internal/service"
)

// SetupRouter configures the Gin router with all routes.
func SetupRouter(
	ingestService *service.IngestService,
	jobService *service.OCRJobService,
	cfg *config.ServerConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	ingestHandler := handler.NewIngestHandler(ingestService, cfg.MaxUploadBytes)
	jobHandler := handler.NewOCRJobHandler(jobService)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/documents/ingest", ingestHandler.Ingest)
		v1.GET("/ocr/jobs/:id", jobHandler.Status)
	}

	return r
}
