package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ingest-gateway/internal/controller"
	"ingest-gateway/internal/handler"
)

// NewRouter создает новый роутер с настройкой маршрутов
func NewRouter(
	videoStreamHandler *handler.VideoStreamHandler,
	autoStreamHandler *handler.AutoStreamHandler,
	liveHandler *handler.LiveHandler,
	service *controller.VideoStreamServiceImpl,
	logger *zap.Logger,
) http.Handler {

	// Режим Gin
	if gin.Mode() == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	// Health check живет над версионированным API: не зависит от
	// наличия или отсутствия стримов, только от доступности хранилища
	router.GET("/health", func(c *gin.Context) {
		if err := service.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": "ingest-gateway",
				"message": err.Error(),
				"time":    time.Now().Unix(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "ingest-gateway",
			"version": "1.0.0",
			"time":    time.Now().Unix(),
		})
	})

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		videoStreamHandler.RegisterRoutes(apiV1)
		autoStreamHandler.RegisterRoutes(apiV1)
		liveHandler.RegisterRoutes(apiV1)

		apiV1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "running",
				"timestamp": time.Now().Unix(),
				"endpoints": []string{
					"/api/v1/video/start - POST - Start stream",
					"/api/v1/video/frame - POST - Send frame (json or multipart)",
					"/api/v1/video/stop - POST - Stop stream",
					"/api/v1/video/active - GET - Get active streams",
					"/api/v1/video/stats/{stream_id} - GET - Get stream stats",
					"/api/v1/video/client/{client_id}/streams - GET - Get client streams",
					"/api/v1/video/live/{stream_id} - GET - WebSocket live view",
					"/api/v1/test/auto-stream - POST - Auto-provision stream",
				},
			})
		})
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
			"suggestions": []string{
				"Check /health for service status",
				"Check /api/v1/status for API status",
				"Check /api/v1/test/endpoints for available endpoints",
			},
		})
	})

	return router
}

// NewTestRouter создает роутер для тестов
func NewTestRouter(
	videoStreamHandler *handler.VideoStreamHandler,
	autoStreamHandler *handler.AutoStreamHandler,
	liveHandler *handler.LiveHandler,
) *gin.Engine {

	gin.SetMode(gin.TestMode)
	router := gin.New()

	apiV1 := router.Group("/api/v1")
	{
		videoStreamHandler.RegisterRoutes(apiV1)
		autoStreamHandler.RegisterRoutes(apiV1)
		liveHandler.RegisterRoutes(apiV1)
	}

	return router
}
