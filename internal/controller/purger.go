package controller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartPurgeWorker запускает периодическую чистку остановленных
// стримов. Возвращается после отмены контекста.
func StartPurgeWorker(
	ctx context.Context,
	logger *zap.Logger,
	service *VideoStreamServiceImpl,
	ttl time.Duration,
	interval time.Duration,
) {
	if ttl <= 0 || interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := service.PurgeStopped(ctx, ttl)
			if err != nil {
				logger.Error("Failed to purge stopped streams", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("Purged stopped streams", zap.Int("count", purged))
			}
		}
	}
}
