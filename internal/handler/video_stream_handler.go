package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ingest-gateway/internal/config"
	"ingest-gateway/internal/controller"
	"ingest-gateway/internal/types"
)

// VideoStreamHandler обрабатывает HTTP запросы для видеостримов
type VideoStreamHandler struct {
	logger  *zap.Logger
	service *controller.VideoStreamServiceImpl
	video   config.VideoConfig
}

// NewVideoStreamHandler создает новый хендлер
func NewVideoStreamHandler(
	logger *zap.Logger,
	service *controller.VideoStreamServiceImpl,
	video config.VideoConfig,
) *VideoStreamHandler {
	return &VideoStreamHandler{
		logger:  logger,
		service: service,
		video:   video,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *VideoStreamHandler) RegisterRoutes(router *gin.RouterGroup) {
	video := router.Group("/video")
	{
		video.POST("/start", h.StartStream)
		video.POST("/frame", h.SendFrame)
		video.POST("/stop", h.StopStream)
		video.GET("/active", h.GetActiveStreams)
		video.GET("/stats/:stream_id", h.GetStreamStats)
		video.GET("/client/:client_id/streams", h.GetClientStreams)
		video.GET("/all-stats", h.GetAllStats)
	}
}

type startStreamRequest struct {
	ClientID   string `json:"client_id"`
	UserID     string `json:"user_id"`
	CameraName string `json:"camera_name"`
	Filename   string `json:"filename"`
}

type framePayload struct {
	FrameData string `json:"frame_data" binding:"required"`
	Timestamp int64  `json:"timestamp"`
	Width     int32  `json:"width"`
	Height    int32  `json:"height"`
	Format    string `json:"format"`
}

type jsonFrameRequest struct {
	StreamID string        `json:"stream_id" binding:"required"`
	ClientID string        `json:"client_id"`
	UserName string        `json:"user_name"`
	Frame    *framePayload `json:"frame" binding:"required"`
}

// frameMetadata - JSON-часть multipart запроса. Timestamp приходит
// как число или как строка, поэтому json.Number.
type frameMetadata struct {
	StreamID  string      `json:"stream_id"`
	ClientID  string      `json:"client_id"`
	UserName  string      `json:"user_name"`
	Timestamp json.Number `json:"timestamp"`
	Width     int32       `json:"width"`
	Height    int32       `json:"height"`
	Format    string      `json:"format"`
}

type stopStreamRequest struct {
	StreamID string `json:"stream_id" binding:"required"`
	ClientID string `json:"client_id"`
	Filename string `json:"filename"`
}

// writeServiceError переводит ошибки сервиса в HTTP статусы
func (h *VideoStreamHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, controller.ErrStreamNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Stream not found",
			"message": err.Error(),
		})
	case errors.Is(err, controller.ErrStreamStopped):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Stream already stopped",
			"message": err.Error(),
		})
	case errors.Is(err, controller.ErrEmptyFrame):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Empty frame",
			"message": err.Error(),
		})
	case errors.Is(err, controller.ErrFrameTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "Frame too large",
			"message": err.Error(),
		})
	default:
		h.logger.Error("Service call failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"message": err.Error(),
		})
	}
}

// StartStream обрабатывает начало стрима
func (h *VideoStreamHandler) StartStream(c *gin.Context) {
	var req startStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": err.Error(),
		})
		return
	}

	// Значения по умолчанию
	if req.ClientID == "" {
		req.ClientID = "client_" + time.Now().Format("20060102150405")
	}
	if req.UserID == "" {
		req.UserID = req.ClientID
	}
	if req.CameraName == "" {
		req.CameraName = "default_camera"
	}
	if req.Filename == "" {
		req.Filename = req.ClientID + ".mp4"
	}

	response, err := h.service.StartStream(c.Request.Context(), &controller.StartStreamRequest{
		ClientID:   req.ClientID,
		UserID:     req.UserID,
		CameraName: req.CameraName,
		Filename:   req.Filename,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"stream_id": response.StreamID,
		"message":   response.Message,
		"timestamp": time.Now().Unix(),
		"details": gin.H{
			"client_id":   req.ClientID,
			"user_id":     req.UserID,
			"camera_name": req.CameraName,
			"filename":    req.Filename,
		},
	})
}

// SendFrame обрабатывает отправку видео кадра
func (h *VideoStreamHandler) SendFrame(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	if strings.Contains(contentType, "multipart/form-data") {
		h.handleMultipartFrame(c)
	} else {
		h.handleJSONFrame(c)
	}
}

// handleJSONFrame обрабатывает JSON запрос с base64 payload
func (h *VideoStreamHandler) handleJSONFrame(c *gin.Context) {
	var req jsonFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid JSON request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid JSON",
			"message": err.Error(),
		})
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Frame.FrameData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid frame data",
			"message": "frame.frame_data must be valid base64",
		})
		return
	}

	if req.UserName == "" {
		req.UserName = req.ClientID
	}

	format := req.Frame.Format
	if format == "" {
		format = h.video.DefaultFormat
	}

	frame := &types.VideoFrame{
		StreamID:  req.StreamID,
		ClientID:  req.ClientID,
		UserName:  req.UserName,
		Payload:   payload,
		Timestamp: req.Frame.Timestamp,
		Width:     req.Frame.Width,
		Height:    req.Frame.Height,
		Format:    format,
	}

	response, err := h.service.IngestFrame(c.Request.Context(), frame)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     response.Status,
		"message":    response.Message,
		"timestamp":  response.Timestamp,
		"metadata":   response.Metadata,
		"format":     "json_base64",
		"frame_size": len(payload),
		"stream_id":  req.StreamID,
	})
}

// handleMultipartFrame обрабатывает multipart запрос с бинарными данными
func (h *VideoStreamHandler) handleMultipartFrame(c *gin.Context) {
	file, header, err := c.Request.FormFile("frame")
	if err != nil {
		h.logger.Error("No frame file in multipart", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "No frame file",
			"message": "Please include 'frame' file in multipart form",
		})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read frame data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read frame",
			"message": err.Error(),
		})
		return
	}

	metadataStr := c.PostForm("metadata")
	if metadataStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "No metadata",
			"message": "Please include 'metadata' JSON part in multipart form",
		})
		return
	}

	var metadata frameMetadata
	if err := json.Unmarshal([]byte(metadataStr), &metadata); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid metadata",
			"message": err.Error(),
		})
		return
	}

	if metadata.StreamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing stream_id",
			"message": "metadata.stream_id is required",
		})
		return
	}

	var timestamp int64
	if metadata.Timestamp != "" {
		timestamp, err = metadata.Timestamp.Int64()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid timestamp",
				"message": "metadata.timestamp must be an integer",
			})
			return
		}
	}

	format := metadata.Format
	if format == "" {
		format = formatFromContentType(header.Header.Get("Content-Type"))
	}
	if format == "" {
		format = h.video.DefaultFormat
	}

	frame := &types.VideoFrame{
		StreamID:  metadata.StreamID,
		ClientID:  metadata.ClientID,
		UserName:  metadata.UserName,
		Payload:   payload,
		Timestamp: timestamp,
		Width:     metadata.Width,
		Height:    metadata.Height,
		Format:    format,
	}

	response, err := h.service.IngestFrame(c.Request.Context(), frame)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     response.Status,
		"message":    response.Message,
		"timestamp":  response.Timestamp,
		"metadata":   response.Metadata,
		"format":     "multipart",
		"frame_size": len(payload),
		"stream_id":  metadata.StreamID,
	})
}

// formatFromContentType выводит формат кадра из Content-Type части.
// application/octet-stream формата не несет.
func formatFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "video/") {
		return mediaType[strings.Index(mediaType, "/")+1:]
	}
	return ""
}

// StopStream обрабатывает остановку стрима
func (h *VideoStreamHandler) StopStream(c *gin.Context) {
	var req stopStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": err.Error(),
		})
		return
	}

	response, err := h.service.StopStream(c.Request.Context(), &controller.StopStreamRequest{
		StreamID: req.StreamID,
		ClientID: req.ClientID,
		Filename: req.Filename,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    response.Status,
		"message":   response.Message,
		"timestamp": response.Timestamp,
		"metadata":  response.Metadata,
	})
}

// GetStreamStats возвращает статистику одного стрима
func (h *VideoStreamHandler) GetStreamStats(c *gin.Context) {
	streamID := c.Param("stream_id")

	stats, err := h.service.GetStreamStats(c.Request.Context(), streamID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"stats": gin.H{
			"stream_id":      stats.StreamID,
			"client_id":      stats.ClientID,
			"status":         stats.Status,
			"start_time":     stats.StartTime,
			"duration":       stats.Duration,
			"frame_count":    stats.FramesReceived,
			"bytes_received": stats.BytesReceived,
			"average_fps":    stats.AverageFPS,
			"width":          stats.Width,
			"height":         stats.Height,
			"format":         stats.Format,
		},
	})
}

// GetActiveStreams возвращает активные стримы
func (h *VideoStreamHandler) GetActiveStreams(c *gin.Context) {
	activeStreams, err := h.service.GetActiveStreams(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	streams := make([]gin.H, 0, len(activeStreams))
	for _, stream := range activeStreams {
		streams = append(streams, gin.H{
			"stream_id":   stream.StreamID,
			"client_id":   stream.ClientID,
			"user_name":   stream.UserName,
			"camera_name": stream.CameraName,
			"status":      stream.Status,
			"start_time":  stream.StartTime,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"active_streams": len(streams),
		"streams":        streams,
		"timestamp":      time.Now().Unix(),
	})
}

// GetClientStreams возвращает стримы клиента
func (h *VideoStreamHandler) GetClientStreams(c *gin.Context) {
	clientID := c.Param("client_id")

	clientStreams, err := h.service.GetStreamsByClient(c.Request.Context(), clientID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	result := make([]gin.H, 0, len(clientStreams))
	for _, stream := range clientStreams {
		result = append(result, gin.H{
			"stream_id":   stream.StreamID,
			"client_id":   stream.ClientID,
			"user_name":   stream.UserName,
			"camera_name": stream.CameraName,
			"status":      stream.Status,
			"start_time":  stream.StartTime,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"client_id": clientID,
		"count":     len(result),
		"streams":   result,
		"timestamp": time.Now().Unix(),
	})
}

// GetAllStats возвращает всю статистику
func (h *VideoStreamHandler) GetAllStats(c *gin.Context) {
	allStats, err := h.service.GetAllStats(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	stats := make([]gin.H, 0, len(allStats))
	totalFrames := int64(0)
	totalBytes := int64(0)

	for _, stat := range allStats {
		totalFrames += stat.FramesReceived
		totalBytes += stat.BytesReceived

		stats = append(stats, gin.H{
			"stream_id":      stat.StreamID,
			"client_id":      stat.ClientID,
			"status":         stat.Status,
			"start_time":     stat.StartTime,
			"duration":       stat.Duration,
			"frame_count":    stat.FramesReceived,
			"bytes_received": stat.BytesReceived,
			"average_fps":    stat.AverageFPS,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"total_streams": len(stats),
		"total_frames":  totalFrames,
		"total_bytes":   totalBytes,
		"stats":         stats,
		"timestamp":     time.Now().Unix(),
	})
}
