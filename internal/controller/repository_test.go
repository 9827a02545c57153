package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ingest-gateway/internal/types"
)

func newTestSession(streamID string) *StreamSession {
	return &StreamSession{
		StreamID:   streamID,
		ClientID:   "client_1",
		UserID:     "user_1",
		UserName:   "user_1",
		CameraName: "camera_1",
		Filename:   "out.mp4",
		Status:     StatusActive,
		StartTime:  time.Now().Unix(),
	}
}

func testFrame(streamID string, size int) *types.VideoFrame {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return &types.VideoFrame{
		StreamID:  streamID,
		ClientID:  "client_1",
		UserName:  "user_1",
		Payload:   payload,
		Timestamp: time.Now().Unix(),
		Width:     1920,
		Height:    1080,
		Format:    "jpeg",
	}
}

func TestCreateSessionInitialStats(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stats, err := repo.GetStats(ctx, "stream_a")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.FramesReceived != 0 {
		t.Errorf("frames = %d, want 0", stats.FramesReceived)
	}
	if stats.Status != StatusActive {
		t.Errorf("status = %q, want %q", stats.Status, StatusActive)
	}
}

func TestCreateSessionDuplicate(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.CreateSession(ctx, newTestSession("stream_a")); !errors.Is(err, ErrStreamExists) {
		t.Errorf("duplicate create = %v, want ErrStreamExists", err)
	}
}

func TestRecordFrameUpdatesStats(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var stats *StreamStats
	var err error
	for i := 0; i < 3; i++ {
		stats, err = repo.RecordFrame(ctx, "stream_a", testFrame("stream_a", 100))
		if err != nil {
			t.Fatalf("RecordFrame: %v", err)
		}
	}

	if stats.FramesReceived != 3 {
		t.Errorf("frames = %d, want 3", stats.FramesReceived)
	}
	if stats.BytesReceived != 300 {
		t.Errorf("bytes = %d, want 300", stats.BytesReceived)
	}
	if stats.Width != 1920 || stats.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", stats.Width, stats.Height)
	}
	if stats.Format != "jpeg" {
		t.Errorf("format = %q, want jpeg", stats.Format)
	}
}

func TestRecordFrameUnknownStream(t *testing.T) {
	repo := NewStreamRepository()

	_, err := repo.RecordFrame(context.Background(), "missing", testFrame("missing", 10))
	if !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("RecordFrame = %v, want ErrStreamNotFound", err)
	}
}

func TestStopSessionLifecycle(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := repo.RecordFrame(ctx, "stream_a", testFrame("stream_a", 10)); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}

	summary, err := repo.StopSession(ctx, "stream_a")
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if summary.Status != StatusStopped {
		t.Errorf("status = %q, want %q", summary.Status, StatusStopped)
	}
	if summary.FramesReceived != 1 {
		t.Errorf("frames = %d, want 1", summary.FramesReceived)
	}

	// Повторная остановка
	if _, err := repo.StopSession(ctx, "stream_a"); !errors.Is(err, ErrStreamStopped) {
		t.Errorf("second stop = %v, want ErrStreamStopped", err)
	}

	// Кадр после остановки
	if _, err := repo.RecordFrame(ctx, "stream_a", testFrame("stream_a", 10)); !errors.Is(err, ErrStreamStopped) {
		t.Errorf("frame after stop = %v, want ErrStreamStopped", err)
	}

	// Статистика tombstone еще доступна
	stats, err := repo.GetStats(ctx, "stream_a")
	if err != nil {
		t.Fatalf("GetStats after stop: %v", err)
	}
	if stats.Status != StatusStopped {
		t.Errorf("tombstone status = %q, want %q", stats.Status, StatusStopped)
	}

	// Идентификатор занят tombstone и не может быть выдан повторно
	if err := repo.CreateSession(ctx, newTestSession("stream_a")); !errors.Is(err, ErrStreamExists) {
		t.Errorf("create over tombstone = %v, want ErrStreamExists", err)
	}
}

func TestStopSessionUnknown(t *testing.T) {
	repo := NewStreamRepository()

	_, err := repo.StopSession(context.Background(), "missing")
	if !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("StopSession = %v, want ErrStreamNotFound", err)
	}
}

func TestConcurrentRecordFrameNoLostUpdates(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	const workers = 8
	const framesPerWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < framesPerWorker; j++ {
				if _, err := repo.RecordFrame(ctx, "stream_a", testFrame("stream_a", 10)); err != nil {
					t.Errorf("RecordFrame: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stats, err := repo.GetStats(ctx, "stream_a")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if want := int64(workers * framesPerWorker); stats.FramesReceived != want {
		t.Errorf("frames = %d, want %d", stats.FramesReceived, want)
	}
}

func TestConcurrentStopRejectsLateFrames(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var accepted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := repo.RecordFrame(ctx, "stream_a", testFrame("stream_a", 10)); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		if _, err := repo.StopSession(ctx, "stream_a"); err != nil {
			t.Errorf("StopSession: %v", err)
		}
	}()
	wg.Wait()

	stats, err := repo.GetStats(ctx, "stream_a")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.FramesReceived != accepted {
		t.Errorf("frames = %d, accepted = %d, counts must match", stats.FramesReceived, accepted)
	}
}

func TestPurgeStopped(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_active")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.CreateSession(ctx, newTestSession("stream_stopped")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := repo.StopSession(ctx, "stream_stopped"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}

	purged, err := repo.PurgeStopped(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeStopped: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := repo.GetStats(ctx, "stream_stopped"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("stats after purge = %v, want ErrStreamNotFound", err)
	}
	if _, err := repo.GetStats(ctx, "stream_active"); err != nil {
		t.Errorf("active stream purged unexpectedly: %v", err)
	}
}

func TestPurgeStoppedRespectsTTL(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	if err := repo.CreateSession(ctx, newTestSession("stream_a")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := repo.StopSession(ctx, "stream_a"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}

	purged, err := repo.PurgeStopped(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PurgeStopped: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0 (stream stopped just now)", purged)
	}
}

func TestListSessions(t *testing.T) {
	repo := NewStreamRepository()
	ctx := context.Background()

	for _, id := range []string{"stream_a", "stream_b"} {
		if err := repo.CreateSession(ctx, newTestSession(id)); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(sessions))
	}
}
