package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	helpy "github.com/haqury/helpy"
	"go.uber.org/zap"

	"ingest-gateway/internal/types"
)

// Ошибки валидации кадров
var (
	ErrEmptyFrame    = errors.New("frame payload is empty")
	ErrFrameTooLarge = errors.New("frame payload exceeds max size")
)

// FramePublisher рассылает принятые кадры подписчикам
type FramePublisher interface {
	Publish(streamID string, frame *types.VideoFrame)
}

// StartStreamRequest - параметры запуска стрима
type StartStreamRequest struct {
	ClientID   string
	UserID     string
	CameraName string
	Filename   string
}

// StartStreamResponse - результат запуска стрима
type StartStreamResponse struct {
	StreamID string
	Status   string
	Message  string
}

// StopStreamRequest - параметры остановки стрима
type StopStreamRequest struct {
	StreamID string
	ClientID string
	Filename string
}

// AutoStreamRequest - параметры автосоздания стрима
type AutoStreamRequest struct {
	ClientID string
	UserID   string
	Camera   string
}

// AutoStreamResponse - результат автосоздания
type AutoStreamResponse struct {
	StreamID     string
	ClientID     string
	Instructions string
}

// VideoStreamServiceImpl - сервис для управления видеостримами
type VideoStreamServiceImpl struct {
	store        StreamStore
	logger       *zap.Logger
	publisher    FramePublisher
	maxFrameSize int
	now          func() time.Time
}

// NewVideoStreamService создает новый сервис
func NewVideoStreamService(
	logger *zap.Logger,
	store StreamStore,
	publisher FramePublisher,
	maxFrameSize int,
) *VideoStreamServiceImpl {
	return &VideoStreamServiceImpl{
		store:        store,
		logger:       logger,
		publisher:    publisher,
		maxFrameSize: maxFrameSize,
		now:          time.Now,
	}
}

// newStreamID генерирует свежий идентификатор. UUID гарантирует, что
// идентификатор остановленного стрима никогда не выдается повторно.
func newStreamID(prefix, clientID string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, clientID, uuid.NewString())
}

// StartStream - явное создание стрима
func (s *VideoStreamServiceImpl) StartStream(
	ctx context.Context,
	req *StartStreamRequest,
) (*StartStreamResponse, error) {
	streamID := newStreamID("stream", req.ClientID)

	session := &StreamSession{
		StreamID:   streamID,
		ClientID:   req.ClientID,
		UserID:     req.UserID,
		UserName:   req.UserID,
		CameraName: req.CameraName,
		Filename:   req.Filename,
		Status:     StatusActive,
		StartTime:  s.now().Unix(),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Stream started",
		zap.String("stream_id", streamID),
		zap.String("client_id", req.ClientID),
		zap.String("camera", req.CameraName))

	return &StartStreamResponse{
		StreamID: streamID,
		Status:   "started",
		Message:  fmt.Sprintf("Stream %s started for client %s", streamID, req.ClientID),
	}, nil
}

// IngestFrame - прием нормализованного кадра. Стрим должен существовать
// и быть активным: прием кадра никогда не создает стрим.
func (s *VideoStreamServiceImpl) IngestFrame(
	ctx context.Context,
	frame *types.VideoFrame,
) (*helpy.ApiResponse, error) {
	if frame == nil || frame.Size() == 0 {
		return nil, ErrEmptyFrame
	}
	if s.maxFrameSize > 0 && frame.Size() > s.maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	if frame.FrameID == "" {
		frame.FrameID = "frame_" + uuid.NewString()
	}
	if frame.Timestamp == 0 {
		frame.Timestamp = s.now().Unix()
	}

	stats, err := s.store.RecordFrame(ctx, frame.StreamID, frame)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(frame.StreamID, frame)
	}

	s.logger.Debug("Frame accepted",
		zap.String("stream_id", frame.StreamID),
		zap.String("client_id", frame.ClientID),
		zap.Int("frame_size", frame.Size()),
		zap.Int64("frames_received", stats.FramesReceived))

	return &helpy.ApiResponse{
		Status:    "ok",
		Message:   fmt.Sprintf("Frame accepted for stream %s", frame.StreamID),
		Timestamp: s.now().Unix(),
		Metadata: map[string]string{
			"stream_id":       frame.StreamID,
			"client_id":       frame.ClientID,
			"frame_id":        frame.FrameID,
			"frames_received": fmt.Sprintf("%d", stats.FramesReceived),
			"bytes_received":  fmt.Sprintf("%d", stats.BytesReceived),
		},
	}, nil
}

// StopStream - остановка стрима. Повторный вызов дает ErrStreamStopped.
func (s *VideoStreamServiceImpl) StopStream(
	ctx context.Context,
	req *StopStreamRequest,
) (*helpy.ApiResponse, error) {
	stats, err := s.store.StopSession(ctx, req.StreamID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stream stopped",
		zap.String("stream_id", req.StreamID),
		zap.String("client_id", req.ClientID),
		zap.Int64("frames_received", stats.FramesReceived),
		zap.Int64("duration", stats.Duration))

	return &helpy.ApiResponse{
		Status:    "ok",
		Message:   fmt.Sprintf("Stream %s stopped", req.StreamID),
		Timestamp: s.now().Unix(),
		Metadata: map[string]string{
			"stream_id":       req.StreamID,
			"client_id":       req.ClientID,
			"filename":        req.Filename,
			"frames_received": fmt.Sprintf("%d", stats.FramesReceived),
			"bytes_received":  fmt.Sprintf("%d", stats.BytesReceived),
			"duration":        fmt.Sprintf("%d", stats.Duration),
		},
	}, nil
}

// AutoProvision создает стрим без явного start. Каждый вызов создает
// новый стрим, идентификаторы живут в отдельном пространстве "auto".
func (s *VideoStreamServiceImpl) AutoProvision(
	ctx context.Context,
	req *AutoStreamRequest,
) (*AutoStreamResponse, error) {
	streamID := newStreamID("auto", req.ClientID)

	session := &StreamSession{
		StreamID:   streamID,
		ClientID:   req.ClientID,
		UserID:     req.UserID,
		UserName:   req.UserID,
		CameraName: req.Camera,
		Filename:   fmt.Sprintf("%s_%d.mp4", streamID, s.now().Unix()),
		Status:     StatusActive,
		StartTime:  s.now().Unix(),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Stream auto-provisioned",
		zap.String("stream_id", streamID),
		zap.String("client_id", req.ClientID),
		zap.String("camera", req.Camera))

	return &AutoStreamResponse{
		StreamID:     streamID,
		ClientID:     req.ClientID,
		Instructions: "Send POST request to /api/v1/video/frame with this stream_id",
	}, nil
}

// GetStreamStats - статистика одного стрима
func (s *VideoStreamServiceImpl) GetStreamStats(ctx context.Context, streamID string) (*StreamStats, error) {
	return s.store.GetStats(ctx, streamID)
}

// GetStream - информация об одном стриме
func (s *VideoStreamServiceImpl) GetStream(ctx context.Context, streamID string) (*StreamSession, error) {
	return s.store.GetSession(ctx, streamID)
}

// GetActiveStreams возвращает активные стримы
func (s *VideoStreamServiceImpl) GetActiveStreams(ctx context.Context) ([]*StreamSession, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*StreamSession, 0, len(sessions))
	for _, session := range sessions {
		if session.Status == StatusActive {
			active = append(active, session)
		}
	}
	return active, nil
}

// GetStreamsByClient возвращает стримы клиента
func (s *VideoStreamServiceImpl) GetStreamsByClient(ctx context.Context, clientID string) ([]*StreamSession, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	clientStreams := make([]*StreamSession, 0)
	for _, session := range sessions {
		if session.ClientID == clientID {
			clientStreams = append(clientStreams, session)
		}
	}
	return clientStreams, nil
}

// GetAllStats возвращает статистику всех стримов
func (s *VideoStreamServiceImpl) GetAllStats(ctx context.Context) ([]*StreamStats, error) {
	return s.store.ListStats(ctx)
}

// PurgeStopped удаляет давно остановленные стримы
func (s *VideoStreamServiceImpl) PurgeStopped(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.store.PurgeStopped(ctx, olderThan)
}

// Ping проверяет доступность хранилища
func (s *VideoStreamServiceImpl) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
