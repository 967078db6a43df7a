package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/repository/room"
)

func (r repo) SetVersion(ctx context.Context, version string) error {
	pipe := r.rc.TxPipeline()
	pipe.Set(ctx, versionKey, version, 0)
	pipe.Publish(ctx, appSettingsChannel, r.encodeEvent(room.NodeVersion, version))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}

	return nil
}

func (r repo) GetVersion(ctx context.Context) (string, error) {
	version, err := r.rc.Get(ctx, versionKey).Result()
	if err != nil {
		if err == redis.Nil {
			return "", room.ErrVersionNotFound
		}
		return "", fmt.Errorf("failed to get version: %w", err)
	}

	return version, nil
}
