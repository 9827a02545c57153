package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ingest-gateway/internal/config"
	"ingest-gateway/internal/types"
)

const (
	redisStreamKeyPrefix = "ingest:stream:"
	redisStreamIndexKey  = "ingest:streams"
)

// Скрипт учета кадра: проверка статуса и инкремент счетчиков должны
// быть одним атомарным шагом, иначе кадр может проскочить после stop
var recordFrameScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return redis.error_reply('NOTFOUND')
end
if redis.call('HGET', key, 'status') ~= 'active' then
  return redis.error_reply('STOPPED')
end
local frames = redis.call('HINCRBY', key, 'frames', 1)
local bytes = redis.call('HINCRBY', key, 'bytes', ARGV[1])
if tonumber(ARGV[2]) > 0 then redis.call('HSET', key, 'width', ARGV[2]) end
if tonumber(ARGV[3]) > 0 then redis.call('HSET', key, 'height', ARGV[3]) end
if ARGV[4] ~= '' then redis.call('HSET', key, 'format', ARGV[4]) end
redis.call('HSET', key, 'last_frame_at', ARGV[5])
return {frames, bytes}
`)

var stopSessionScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return redis.error_reply('NOTFOUND')
end
if redis.call('HGET', key, 'status') ~= 'active' then
  return redis.error_reply('STOPPED')
end
redis.call('HSET', key, 'status', 'stopped', 'stopped_at', ARGV[1])
return redis.status_reply('OK')
`)

// RedisStreamRepository - реализация StreamStore поверх Redis.
// Каждый стрим - hash, индекс идентификаторов - set.
type RedisStreamRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStreamRepository создает Redis-репозиторий
func NewRedisStreamRepository(cfg config.RedisConfig) *RedisStreamRepository {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		MaxRetries:   2,
	})
	return &RedisStreamRepository{client: client, now: time.Now}
}

func streamKey(streamID string) string {
	return redisStreamKeyPrefix + streamID
}

func mapScriptError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOTFOUND"):
		return ErrStreamNotFound
	case strings.Contains(msg, "STOPPED"):
		return ErrStreamStopped
	}
	return err
}

// CreateSession сохраняет новый стрим. HSETNX по полю status служит
// защитой от повторного использования идентификатора: tombstone
// остановленного стрима держит это поле занятым.
func (r *RedisStreamRepository) CreateSession(ctx context.Context, session *StreamSession) error {
	key := streamKey(session.StreamID)

	created, err := r.client.HSetNX(ctx, key, "status", session.Status).Result()
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	if !created {
		return ErrStreamExists
	}

	fields := map[string]interface{}{
		"stream_id":   session.StreamID,
		"client_id":   session.ClientID,
		"user_id":     session.UserID,
		"user_name":   session.UserName,
		"camera_name": session.CameraName,
		"filename":    session.Filename,
		"start_time":  session.StartTime,
		"frames":      0,
		"bytes":       0,
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, redisStreamIndexKey, session.StreamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) fetch(ctx context.Context, streamID string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, streamKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis fetch stream: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrStreamNotFound
	}
	return fields, nil
}

func parseInt64(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (r *RedisStreamRepository) sessionFromFields(fields map[string]string) *StreamSession {
	return &StreamSession{
		StreamID:   fields["stream_id"],
		ClientID:   fields["client_id"],
		UserID:     fields["user_id"],
		UserName:   fields["user_name"],
		CameraName: fields["camera_name"],
		Filename:   fields["filename"],
		Status:     fields["status"],
		StartTime:  parseInt64(fields, "start_time"),
		StoppedAt:  parseInt64(fields, "stopped_at"),
	}
}

func (r *RedisStreamRepository) statsFromFields(fields map[string]string) *StreamStats {
	stats := &StreamStats{
		StreamID:       fields["stream_id"],
		ClientID:       fields["client_id"],
		Status:         fields["status"],
		StartTime:      parseInt64(fields, "start_time"),
		FramesReceived: parseInt64(fields, "frames"),
		BytesReceived:  parseInt64(fields, "bytes"),
		Width:          int32(parseInt64(fields, "width")),
		Height:         int32(parseInt64(fields, "height")),
		Format:         fields["format"],
		LastFrameAt:    parseInt64(fields, "last_frame_at"),
	}

	end := r.now().Unix()
	if stats.Status == StatusStopped {
		if stoppedAt := parseInt64(fields, "stopped_at"); stoppedAt > 0 {
			end = stoppedAt
		}
	}
	stats.Duration = end - stats.StartTime
	if stats.Duration > 0 {
		stats.AverageFPS = float32(float64(stats.FramesReceived) / float64(stats.Duration))
	}
	return stats
}

// GetSession получает стрим по ID
func (r *RedisStreamRepository) GetSession(ctx context.Context, streamID string) (*StreamSession, error) {
	fields, err := r.fetch(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return r.sessionFromFields(fields), nil
}

// RecordFrame учитывает принятый кадр
func (r *RedisStreamRepository) RecordFrame(ctx context.Context, streamID string, frame *types.VideoFrame) (*StreamStats, error) {
	err := recordFrameScript.Run(ctx, r.client,
		[]string{streamKey(streamID)},
		frame.Size(), frame.Width, frame.Height, frame.Format, r.now().Unix(),
	).Err()
	if err != nil {
		return nil, mapScriptError(err)
	}
	return r.GetStats(ctx, streamID)
}

// StopSession переводит стрим в stopped, запись остается как tombstone
func (r *RedisStreamRepository) StopSession(ctx context.Context, streamID string) (*StreamStats, error) {
	err := stopSessionScript.Run(ctx, r.client,
		[]string{streamKey(streamID)},
		r.now().Unix(),
	).Err()
	if err != nil {
		return nil, mapScriptError(err)
	}
	return r.GetStats(ctx, streamID)
}

// GetStats получает статистику стрима
func (r *RedisStreamRepository) GetStats(ctx context.Context, streamID string) (*StreamStats, error) {
	fields, err := r.fetch(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return r.statsFromFields(fields), nil
}

// ListSessions возвращает все стримы
func (r *RedisStreamRepository) ListSessions(ctx context.Context) ([]*StreamSession, error) {
	ids, err := r.client.SMembers(ctx, redisStreamIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list streams: %w", err)
	}

	sessions := make([]*StreamSession, 0, len(ids))
	for _, id := range ids {
		fields, err := r.fetch(ctx, id)
		if err == ErrStreamNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, r.sessionFromFields(fields))
	}
	return sessions, nil
}

// ListStats возвращает статистику всех стримов
func (r *RedisStreamRepository) ListStats(ctx context.Context) ([]*StreamStats, error) {
	ids, err := r.client.SMembers(ctx, redisStreamIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list streams: %w", err)
	}

	stats := make([]*StreamStats, 0, len(ids))
	for _, id := range ids {
		fields, err := r.fetch(ctx, id)
		if err == ErrStreamNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		stats = append(stats, r.statsFromFields(fields))
	}
	return stats, nil
}

// PurgeStopped удаляет давно остановленные стримы
func (r *RedisStreamRepository) PurgeStopped(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := r.client.SMembers(ctx, redisStreamIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis purge: %w", err)
	}

	cutoff := r.now().Add(-olderThan).Unix()
	purged := 0
	for _, id := range ids {
		fields, err := r.fetch(ctx, id)
		if err == ErrStreamNotFound {
			r.client.SRem(ctx, redisStreamIndexKey, id)
			continue
		}
		if err != nil {
			return purged, err
		}
		if fields["status"] != StatusStopped {
			continue
		}
		if parseInt64(fields, "stopped_at") > cutoff {
			continue
		}
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, streamKey(id))
		pipe.SRem(ctx, redisStreamIndexKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("redis purge: %w", err)
		}
		purged++
	}
	return purged, nil
}

// Ping проверяет доступность Redis
func (r *RedisStreamRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (r *RedisStreamRepository) Close() error {
	return r.client.Close()
}
