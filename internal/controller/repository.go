package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"ingest-gateway/internal/types"
)

// Ошибки реестра стримов
var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrStreamStopped  = errors.New("stream already stopped")
	ErrStreamExists   = errors.New("stream id already in use")
)

// Статусы стрима. Переход единственный: active -> stopped
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// StreamSession - запись об одном стриме
type StreamSession struct {
	StreamID   string `json:"stream_id"`
	ClientID   string `json:"client_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	CameraName string `json:"camera_name"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	StartTime  int64  `json:"start_time"`
	StoppedAt  int64  `json:"stopped_at,omitempty"`
}

// StreamStats - накопленная статистика стрима
type StreamStats struct {
	StreamID       string  `json:"stream_id"`
	ClientID       string  `json:"client_id"`
	Status         string  `json:"status"`
	StartTime      int64   `json:"start_time"`
	Duration       int64   `json:"duration"`
	FramesReceived int64   `json:"frames_received"`
	BytesReceived  int64   `json:"bytes_received"`
	AverageFPS     float32 `json:"average_fps"`
	Width          int32   `json:"width"`
	Height         int32   `json:"height"`
	Format         string  `json:"format"`
	LastFrameAt    int64   `json:"last_frame_at,omitempty"`
}

// StreamStore - хранилище стримов. Реализации: in-memory и Redis.
type StreamStore interface {
	CreateSession(ctx context.Context, session *StreamSession) error
	GetSession(ctx context.Context, streamID string) (*StreamSession, error)
	// RecordFrame атомарно проверяет статус и инкрементирует счетчики
	RecordFrame(ctx context.Context, streamID string, frame *types.VideoFrame) (*StreamStats, error)
	StopSession(ctx context.Context, streamID string) (*StreamStats, error)
	GetStats(ctx context.Context, streamID string) (*StreamStats, error)
	ListSessions(ctx context.Context) ([]*StreamSession, error)
	ListStats(ctx context.Context) ([]*StreamStats, error)
	// PurgeStopped удаляет стримы, остановленные раньше чем olderThan назад
	PurgeStopped(ctx context.Context, olderThan time.Duration) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// streamEntry держит сессию и статистику под собственным мьютексом,
// чтобы стримы с разными id не конкурировали между собой
type streamEntry struct {
	mu      sync.Mutex
	session StreamSession
	stats   StreamStats
}

// StreamRepository - in-memory реализация StreamStore
type StreamRepository struct {
	mu      sync.RWMutex
	streams map[string]*streamEntry
	now     func() time.Time
}

// NewStreamRepository создает новый репозиторий
func NewStreamRepository() *StreamRepository {
	return &StreamRepository{
		streams: make(map[string]*streamEntry),
		now:     time.Now,
	}
}

// CreateSession сохраняет новый стрим
func (r *StreamRepository) CreateSession(ctx context.Context, session *StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[session.StreamID]; exists {
		return ErrStreamExists
	}

	entry := &streamEntry{session: *session}
	entry.stats = StreamStats{
		StreamID:  session.StreamID,
		ClientID:  session.ClientID,
		Status:    session.Status,
		StartTime: session.StartTime,
	}
	r.streams[session.StreamID] = entry
	return nil
}

func (r *StreamRepository) entry(streamID string) (*streamEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.streams[streamID]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return entry, nil
}

// GetSession получает стрим по ID
func (r *StreamRepository) GetSession(ctx context.Context, streamID string) (*StreamSession, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	session := entry.session
	return &session, nil
}

// RecordFrame учитывает принятый кадр. Проверка статуса и инкремент
// выполняются под одним мьютексом: кадр не может быть принят после
// завершившегося StopSession.
func (r *StreamRepository) RecordFrame(ctx context.Context, streamID string, frame *types.VideoFrame) (*StreamStats, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session.Status != StatusActive {
		return nil, ErrStreamStopped
	}

	now := r.now().Unix()
	stats := &entry.stats
	stats.FramesReceived++
	stats.BytesReceived += int64(frame.Size())
	stats.LastFrameAt = now
	if frame.Width > 0 {
		stats.Width = frame.Width
	}
	if frame.Height > 0 {
		stats.Height = frame.Height
	}
	if frame.Format != "" {
		stats.Format = frame.Format
	}
	stats.Duration = now - stats.StartTime
	if stats.Duration > 0 {
		stats.AverageFPS = float32(float64(stats.FramesReceived) / float64(stats.Duration))
	}

	snapshot := *stats
	return &snapshot, nil
}

// StopSession переводит стрим в stopped. Запись остается как tombstone:
// идентификатор никогда не используется повторно.
func (r *StreamRepository) StopSession(ctx context.Context, streamID string) (*StreamStats, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session.Status == StatusStopped {
		return nil, ErrStreamStopped
	}

	now := r.now().Unix()
	entry.session.Status = StatusStopped
	entry.session.StoppedAt = now
	entry.stats.Status = StatusStopped
	entry.stats.Duration = now - entry.stats.StartTime

	snapshot := entry.stats
	return &snapshot, nil
}

// GetStats получает статистику стрима
func (r *StreamRepository) GetStats(ctx context.Context, streamID string) (*StreamStats, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snapshot := entry.stats
	return &snapshot, nil
}

// ListSessions возвращает все стримы
func (r *StreamRepository) ListSessions(ctx context.Context) ([]*StreamSession, error) {
	r.mu.RLock()
	entries := make([]*streamEntry, 0, len(r.streams))
	for _, entry := range r.streams {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sessions := make([]*StreamSession, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session
		entry.mu.Unlock()
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

// ListStats возвращает статистику всех стримов
func (r *StreamRepository) ListStats(ctx context.Context) ([]*StreamStats, error) {
	r.mu.RLock()
	entries := make([]*streamEntry, 0, len(r.streams))
	for _, entry := range r.streams {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	stats := make([]*StreamStats, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		snapshot := entry.stats
		entry.mu.Unlock()
		stats = append(stats, &snapshot)
	}
	return stats, nil
}

// PurgeStopped удаляет давно остановленные стримы
func (r *StreamRepository) PurgeStopped(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().Add(-olderThan).Unix()

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, entry := range r.streams {
		entry.mu.Lock()
		expired := entry.session.Status == StatusStopped && entry.session.StoppedAt <= cutoff
		entry.mu.Unlock()
		if expired {
			delete(r.streams, id)
			purged++
		}
	}
	return purged, nil
}

// Ping для in-memory хранилища всегда успешен
func (r *StreamRepository) Ping(ctx context.Context) error {
	return nil
}

// Close для in-memory хранилища ничего не делает
func (r *StreamRepository) Close() error {
	return nil
}
