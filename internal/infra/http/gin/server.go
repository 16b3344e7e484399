package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentsync/internal/infra/config"
	"rentsync/internal/infra/obs"
)

type ListingSyncHTTP interface {
	Get(c *gin.Context)
	Refresh(c *gin.Context)
	CreateRequest(c *gin.Context)
	Close(c *gin.Context)
}

type RequestsHTTP interface {
	List(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
}

type Handlers struct {
	ListingSync ListingSyncHTTP
	Requests    RequestsHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.ListingSync != nil {
		api.GET("/listings/:id/sync", h.ListingSync.Get)
		api.POST("/listings/:id/sync/refresh", h.ListingSync.Refresh)
		api.DELETE("/listings/:id/sync", h.ListingSync.Close)
		api.POST("/listings/:id/requests", h.ListingSync.CreateRequest)
	}
	if h.Requests != nil {
		api.GET("/requests", h.Requests.List)
		api.POST("/requests/:id/approve", h.Requests.Approve)
		api.POST("/requests/:id/reject", h.Requests.Reject)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
