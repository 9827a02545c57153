package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ingest-gateway/internal/controller"
)

// AutoStreamHandler обрабатывает тестовые маршруты автосоздания стримов
type AutoStreamHandler struct {
	logger  *zap.Logger
	service *controller.VideoStreamServiceImpl
}

// NewAutoStreamHandler создает новый хендлер
func NewAutoStreamHandler(
	logger *zap.Logger,
	service *controller.VideoStreamServiceImpl,
) *AutoStreamHandler {
	return &AutoStreamHandler{
		logger:  logger,
		service: service,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *AutoStreamHandler) RegisterRoutes(router *gin.RouterGroup) {
	test := router.Group("/test")
	{
		test.POST("/auto-stream", h.AutoStream)
		test.GET("/endpoints", h.ListEndpoints)
	}
}

type autoStreamRequest struct {
	ClientID string `json:"client_id"`
	UserID   string `json:"user_id"`
	Camera   string `json:"camera"`
}

// AutoStream создает активный стрим без явного start. Каждый вызов
// создает новый стрим, даже при одинаковых параметрах.
func (h *AutoStreamHandler) AutoStream(c *gin.Context) {
	var req autoStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": err.Error(),
		})
		return
	}

	// Значения по умолчанию
	if req.ClientID == "" {
		req.ClientID = "test_client_" + time.Now().Format("20060102150405")
	}
	if req.UserID == "" {
		req.UserID = req.ClientID
	}
	if req.Camera == "" {
		req.Camera = "test_camera"
	}

	response, err := h.service.AutoProvision(c.Request.Context(), &controller.AutoStreamRequest{
		ClientID: req.ClientID,
		UserID:   req.UserID,
		Camera:   req.Camera,
	})
	if err != nil {
		h.logger.Error("Failed to auto-provision stream", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"message":      "Use this stream_id for testing",
		"instructions": response.Instructions,
		"stream_id":    response.StreamID,
		"client_id":    response.ClientID,
		"endpoints": map[string]string{
			"send_frame":  "/api/v1/video/frame",
			"stop_stream": "/api/v1/video/stop",
			"get_stats":   fmt.Sprintf("/api/v1/video/stats/%s", response.StreamID),
			"live_view":   fmt.Sprintf("/api/v1/video/live/%s", response.StreamID),
		},
		"example_request": gin.H{
			"url":    "/api/v1/video/frame",
			"method": "POST",
			"headers": map[string]string{
				"Content-Type": "application/json",
			},
			"body": gin.H{
				"stream_id": response.StreamID,
				"client_id": response.ClientID,
				"user_name": req.UserID,
				"frame": gin.H{
					"frame_data": "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==",
					"timestamp":  time.Now().Unix(),
					"width":      1,
					"height":     1,
					"format":     "png",
				},
			},
		},
	})
}

// ListEndpoints возвращает доступные маршруты для ручного тестирования
func (h *AutoStreamHandler) ListEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Available test endpoints",
		"endpoints": map[string]string{
			"health":         "/health",
			"status":         "/api/v1/status",
			"start_stream":   "/api/v1/video/start",
			"send_frame":     "/api/v1/video/frame",
			"stop_stream":    "/api/v1/video/stop",
			"active_streams": "/api/v1/video/active",
			"stream_stats":   "/api/v1/video/stats/{stream_id}",
			"client_streams": "/api/v1/video/client/{client_id}/streams",
			"all_stats":      "/api/v1/video/all-stats",
			"auto_stream":    "/api/v1/test/auto-stream",
			"live_view":      "/api/v1/video/live/{stream_id}",
		},
	})
}
