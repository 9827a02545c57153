package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPurgeWorkerEvictsStoppedStreams(t *testing.T) {
	service, _ := newTestService(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp, err := service.StartStream(ctx, &StartStreamRequest{
		ClientID: "client_1", UserID: "u", CameraName: "c", Filename: "f",
	})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if _, err := service.StopStream(ctx, &StopStreamRequest{StreamID: resp.StreamID}); err != nil {
		t.Fatalf("StopStream: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		StartPurgeWorker(ctx, zap.NewNop(), service, time.Nanosecond, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := service.GetStreamStats(ctx, resp.StreamID)
		if errors.Is(err, ErrStreamNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stopped stream never purged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purge worker did not exit on context cancel")
	}
}

func TestPurgeWorkerDisabledWithoutTTL(t *testing.T) {
	service, _ := newTestService(0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		StartPurgeWorker(ctx, zap.NewNop(), service, 0, time.Millisecond)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled purge worker did not exit")
	}
}
