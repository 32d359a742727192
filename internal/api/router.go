package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/medialib/internal/api/handlers"
	"github.com/your-org/medialib/internal/api/ws"
	"github.com/your-org/medialib/internal/auth"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/jobs"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/queue"
	"github.com/your-org/medialib/internal/storage"
)

type RouterConfig struct {
	APIKey    string
	Index     *library.Index
	Resolver  *identity.Resolver
	Registry  *library.Registry
	Generator *library.Generator
	Jobs      *jobs.Queue
	DB        *storage.PostgresStore
	MinIO     *storage.MinIOStore
	Producer  *queue.Producer
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Assets
	assetH := handlers.NewAssetHandler(cfg.Index, cfg.Resolver, cfg.Registry, cfg.DB, cfg.MinIO, cfg.Producer)
	v1.POST("/assets", assetH.Upload)
	v1.GET("/assets/:id", assetH.Get)
	v1.DELETE("/assets/:id", assetH.Delete)
	v1.POST("/assets/:id/reenrich", assetH.Reenrich)
	v1.GET("/assets/:id/thumbnail", assetH.Thumbnail)

	// Search
	searchH := handlers.NewSearchHandler(cfg.Index)
	v1.POST("/search", searchH.Search)

	// Persons
	personH := handlers.NewPersonHandler(cfg.Resolver, cfg.Producer)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.PATCH("/persons/:id", personH.Update)
	v1.POST("/persons/:id/merge", personH.Merge)

	// Collections
	colH := handlers.NewCollectionHandler(cfg.Registry, cfg.Generator, cfg.DB)
	v1.GET("/collections", colH.List)
	v1.GET("/collections/:id", colH.Get)
	v1.POST("/collections", colH.Create)
	v1.DELETE("/collections/:id", colH.Delete)
	v1.POST("/collections/generate", colH.Generate)

	// Batch jobs
	batchH := handlers.NewBatchHandler(cfg.Jobs)
	v1.POST("/batch", batchH.Submit)
	v1.GET("/batch", batchH.List)
	v1.GET("/batch/:id", batchH.Get)
	v1.POST("/batch/:id/cancel", batchH.Cancel)

	// Export
	exportH := handlers.NewExportHandler(cfg.Index, cfg.Resolver, cfg.Registry)
	v1.POST("/export", exportH.Export)

	return r
}
