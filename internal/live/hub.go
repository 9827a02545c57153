package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ingest-gateway/internal/types"
)

// Viewer - один websocket-подписчик стрима
type Viewer struct {
	ID       string
	StreamID string
	conn     *websocket.Conn
	send     chan *types.VideoFrame
	closed   chan struct{}
	once     sync.Once
}

// FrameEvent - событие, отправляемое подписчикам
type FrameEvent struct {
	Type      string            `json:"type"`
	StreamID  string            `json:"stream_id"`
	Frame     *types.VideoFrame `json:"frame"`
	Timestamp int64             `json:"timestamp"`
}

// Hub рассылает принятые кадры websocket-подписчикам стримов.
// Медленный подписчик теряет кадры, но не блокирует прием.
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]map[*Viewer]struct{}
	logger  *zap.Logger

	writeTimeout time.Duration
	sendBuffer   int
}

// NewHub создает новый hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		viewers:      make(map[string]map[*Viewer]struct{}),
		logger:       logger,
		writeTimeout: 10 * time.Second,
		sendBuffer:   32,
	}
}

// Subscribe регистрирует подписчика и запускает его циклы чтения
// и записи. Соединение закрывается при первом сбое записи.
func (h *Hub) Subscribe(streamID string, conn *websocket.Conn) *Viewer {
	viewer := &Viewer{
		ID:       uuid.NewString(),
		StreamID: streamID,
		conn:     conn,
		send:     make(chan *types.VideoFrame, h.sendBuffer),
		closed:   make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.viewers[streamID]; !ok {
		h.viewers[streamID] = make(map[*Viewer]struct{})
	}
	h.viewers[streamID][viewer] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Viewer subscribed",
		zap.String("stream_id", streamID),
		zap.String("viewer_id", viewer.ID))

	go h.writeLoop(viewer)
	go h.readLoop(viewer)

	return viewer
}

// Unsubscribe снимает подписчика и закрывает соединение
func (h *Hub) Unsubscribe(viewer *Viewer) {
	viewer.once.Do(func() {
		h.mu.Lock()
		if viewers, ok := h.viewers[viewer.StreamID]; ok {
			delete(viewers, viewer)
			if len(viewers) == 0 {
				delete(h.viewers, viewer.StreamID)
			}
		}
		h.mu.Unlock()

		close(viewer.closed)
		viewer.conn.Close()

		h.logger.Info("Viewer unsubscribed",
			zap.String("stream_id", viewer.StreamID),
			zap.String("viewer_id", viewer.ID))
	})
}

// Publish рассылает кадр подписчикам стрима без блокировки
func (h *Hub) Publish(streamID string, frame *types.VideoFrame) {
	h.mu.RLock()
	viewers := make([]*Viewer, 0, len(h.viewers[streamID]))
	for viewer := range h.viewers[streamID] {
		viewers = append(viewers, viewer)
	}
	h.mu.RUnlock()

	for _, viewer := range viewers {
		select {
		case viewer.send <- frame:
		default:
			// Канал полон, кадр для этого подписчика теряется
			h.logger.Debug("Viewer channel full, dropping frame",
				zap.String("stream_id", streamID),
				zap.String("viewer_id", viewer.ID))
		}
	}
}

// ViewerCount возвращает число подписчиков стрима
func (h *Hub) ViewerCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers[streamID])
}

func (h *Hub) writeLoop(viewer *Viewer) {
	defer h.Unsubscribe(viewer)

	for {
		select {
		case frame := <-viewer.send:
			event := &FrameEvent{
				Type:      "frame",
				StreamID:  viewer.StreamID,
				Frame:     frame,
				Timestamp: time.Now().Unix(),
			}
			viewer.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := viewer.conn.WriteJSON(event); err != nil {
				h.logger.Debug("Viewer write failed",
					zap.String("viewer_id", viewer.ID),
					zap.Error(err))
				return
			}
		case <-viewer.closed:
			return
		}
	}
}

// readLoop вычитывает входящие сообщения, чтобы заметить закрытие
// соединения со стороны клиента
func (h *Hub) readLoop(viewer *Viewer) {
	defer h.Unsubscribe(viewer)

	for {
		if _, _, err := viewer.conn.ReadMessage(); err != nil {
			return
		}
	}
}
