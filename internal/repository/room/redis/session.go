package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

type sessionHash struct {
	ConnectedAt int64  `redis:"connected_at"`
	UserAgent   string `redis:"user_agent"`
}

func (r repo) getSessionListKey(roomId string) string {
	return "room:" + roomId + ":sessions"
}

// Session hashes live outside the room prefix so that room expiry refreshes
// never extend their liveness TTL.
func (r repo) getSessionKeyPrefix(roomId string) string {
	return "session:" + roomId + ":"
}

func (r repo) getSessionKey(roomId, sessionId string) string {
	return r.getSessionKeyPrefix(roomId) + sessionId
}

func (r repo) AddSession(ctx context.Context, params *room.AddSessionParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	sessionKey := r.getSessionKey(params.RoomID, params.SessionID)
	r.HSetStruct(ctx, pipe, sessionKey, sessionHash{
		ConnectedAt: params.ConnectedAt,
		UserAgent:   params.UserAgent,
	})
	pipe.Expire(ctx, sessionKey, params.TTL)

	sessionListKey := r.getSessionListKey(params.RoomID)
	pipe.ZAdd(ctx, sessionListKey, redis.Z{
		Score:  float64(params.ConnectedAt),
		Member: params.SessionID,
	})
	pipe.Expire(ctx, sessionListKey, r.expireDuration)
	r.publish(ctx, pipe, params.RoomID, room.NodeSessions)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}

	return nil
}

func (r repo) RemoveSession(ctx context.Context, params *room.RemoveSessionParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	zremCmd := pipe.ZRem(ctx, r.getSessionListKey(params.RoomID), params.SessionID)
	pipe.Del(ctx, r.getSessionKey(params.RoomID, params.SessionID))
	r.publish(ctx, pipe, params.RoomID, room.NodeSessions)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	if zremCmd.Val() == 0 {
		return room.ErrSessionNotFound
	}

	return nil
}

func (r repo) RefreshSession(ctx context.Context, params *room.RefreshSessionParams) error {
	ok, err := r.rc.Expire(ctx, r.getSessionKey(params.RoomID, params.SessionID), params.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	if !ok {
		return room.ErrSessionNotFound
	}

	return nil
}

// GetSessions returns the live sessions of a room. Members whose record
// expired are pruned from the list and a sessions event is published.
func (r repo) GetSessions(ctx context.Context, roomId string) ([]domain.Session, error) {
	sessionListKey := r.getSessionListKey(roomId)
	members, err := r.rc.ZRangeWithScores(ctx, sessionListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session list: %w", err)
	}

	if len(members) == 0 {
		return []domain.Session{}, nil
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, r.getSessionKey(roomId, m.Member.(string)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(members))
	var stale []interface{}
	for i, cmd := range cmds {
		sessionId := members[i].Member.(string)
		if len(cmd.Val()) == 0 {
			stale = append(stale, sessionId)
			continue
		}

		sessions = append(sessions, domain.Session{
			ID:          sessionId,
			ConnectedAt: int64(members[i].Score),
			UserAgent:   cmd.Val()["user_agent"],
		})
	}

	if len(stale) > 0 {
		r.logger.DebugContext(ctx, "pruning expired sessions", "room_id", roomId, "count", len(stale))
		pipe := r.rc.TxPipeline()
		pipe.ZRem(ctx, sessionListKey, stale...)
		r.publish(ctx, pipe, roomId, room.NodeSessions)
		if err := r.executePipe(ctx, pipe); err != nil {
			return nil, fmt.Errorf("failed to prune sessions: %w", err)
		}
	}

	return sessions, nil
}
