package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/config"
	"github.com/smallbiznis/valora-sleep/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-sleep/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	logger *zap.Logger,
	authHandler *handler.AuthHandler,
	sleepHandler *handler.SleepHandler,
	analysisHandler *handler.AnalysisHandler,
	rateLimiter *httpmiddleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(httpmiddleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		whoop := api.Group("/whoop")
		{
			whoop.GET("/connect", authHandler.Connect)
			whoop.GET("/callback", authHandler.Callback)
			whoop.GET("/session", authHandler.Session)
			whoop.POST("/disconnect", authHandler.Disconnect)
			whoop.GET("/sleep", sleepHandler.Sleep)
			whoop.GET("/snapshot", sleepHandler.Snapshot)
		}

		analyze := api.Group("/analyze")
		{
			analyze.POST("/manual", analysisHandler.Manual)
			analyze.POST("/whoop", analysisHandler.Whoop)
		}
	}

	// The dashboard is static; everything it needs goes through /api.
	if cfg.UIDistDir != "" {
		attachUIRoutes(r, cfg.UIDistDir)
	}

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.Status(http.StatusNotFound)
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return path == "/api" ||
		strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/healthz")
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
