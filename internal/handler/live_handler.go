package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ingest-gateway/internal/config"
	"ingest-gateway/internal/controller"
	"ingest-gateway/internal/live"
)

// LiveHandler отдает принятые кадры websocket-подписчикам
type LiveHandler struct {
	logger   *zap.Logger
	service  *controller.VideoStreamServiceImpl
	hub      *live.Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler создает новый хендлер
func NewLiveHandler(
	logger *zap.Logger,
	service *controller.VideoStreamServiceImpl,
	hub *live.Hub,
	cors config.CORSConfig,
) *LiveHandler {
	return &LiveHandler{
		logger:  logger,
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if !cors.Enabled {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range cors.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// RegisterRoutes регистрирует маршруты
func (h *LiveHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/video/live/:stream_id", h.Watch)
}

// Watch подписывает клиента на кадры стрима. Стрим должен существовать,
// подписка на остановленный стрим допустима: подписчик увидит tombstone
// без кадров.
func (h *LiveHandler) Watch(c *gin.Context) {
	streamID := c.Param("stream_id")

	if _, err := h.service.GetStream(c.Request.Context(), streamID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Stream not found",
			"message": err.Error(),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			zap.String("stream_id", streamID),
			zap.Error(err))
		return
	}

	h.hub.Subscribe(streamID, conn)
}
