package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

type entryHash struct {
	VideoID         string  `redis:"video_id"`
	Title           string  `redis:"title"`
	Artist          string  `redis:"artist"`
	Thumbnail       string  `redis:"thumbnail"`
	RequestedBy     string  `redis:"requested_by"`
	RequestedByName string  `redis:"requested_by_name"`
	Duration        float64 `redis:"duration"`
	CreatedAt       int64   `redis:"created_at"`
	Order           *int64  `redis:"order"`
}

func (r repo) getQueueKey(roomId string) string {
	return "room:" + roomId + ":queue"
}

func (r repo) getEntryKey(roomId, key string) string {
	return "room:" + roomId + ":queue:" + key
}

// removed entries live outside the room prefix so that refreshing the room
// expiry does not extend the undo window
func (r repo) getRemovedEntryKeyPrefix(roomId string) string {
	return "removed-entry:" + roomId + ":"
}

func (r repo) getRemovedEntryKey(roomId, key string) string {
	return r.getRemovedEntryKeyPrefix(roomId) + key
}

func (r repo) parseEntry(key string, m map[string]string) domain.Entry {
	return domain.Entry{
		Key:             key,
		VideoID:         m["video_id"],
		Title:           m["title"],
		Artist:          m["artist"],
		Thumbnail:       m["thumbnail"],
		RequestedBy:     m["requested_by"],
		RequestedByName: m["requested_by_name"],
		Duration:        r.fieldToFloat64(m["duration"]),
		CreatedAt:       r.fieldToInt64(m["created_at"]),
		Order:           r.fieldToInt64Ptr(m, "order"),
	}
}

func (r repo) AddEntry(ctx context.Context, params *room.AddEntryParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	e := params.Entry
	entryKey := r.getEntryKey(params.RoomID, e.Key)
	pipe.Del(ctx, entryKey)
	r.HSetStruct(ctx, pipe, entryKey, entryHash{
		VideoID:         e.VideoID,
		Title:           e.Title,
		Artist:          e.Artist,
		Thumbnail:       e.Thumbnail,
		RequestedBy:     e.RequestedBy,
		RequestedByName: e.RequestedByName,
		Duration:        e.Duration,
		CreatedAt:       e.CreatedAt,
		Order:           e.Order,
	})
	pipe.Expire(ctx, entryKey, r.expireDuration)

	queueKey := r.getQueueKey(params.RoomID)
	pipe.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(e.CreatedAt),
		Member: e.Key,
	})
	pipe.Expire(ctx, queueKey, r.expireDuration)
	r.publish(ctx, pipe, params.RoomID, room.NodeQueue)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	return nil
}

func (r repo) GetEntry(ctx context.Context, roomId, key string) (domain.Entry, error) {
	m, err := r.rc.HGetAll(ctx, r.getEntryKey(roomId, key)).Result()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}

	if len(m) == 0 {
		return domain.Entry{}, room.ErrEntryNotFound
	}

	return r.parseEntry(key, m), nil
}

// GetQueue returns the entries of a room in no particular order.
func (r repo) GetQueue(ctx context.Context, roomId string) ([]domain.Entry, error) {
	queueKey := r.getQueueKey(roomId)
	keys, err := r.rc.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, r.getEntryKey(roomId, key))
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to get entries: %w", err)
		}
	}

	entries := make([]domain.Entry, 0, len(keys))
	var stale []interface{}
	for i, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			stale = append(stale, keys[i])
			continue
		}
		entries = append(entries, r.parseEntry(keys[i], cmd.Val()))
	}

	if len(stale) > 0 {
		r.rc.ZRem(ctx, queueKey, stale...)
	}

	return entries, nil
}

func (r repo) GetQueueLength(ctx context.Context, roomId string) (int, error) {
	n, err := r.rc.ZCard(ctx, r.getQueueKey(roomId)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}

	return int(n), nil
}

func (r repo) RemoveEntry(ctx context.Context, params *room.RemoveEntryParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	removed, err := r.rc.EvalSha(ctx, r.removeEntryScript, []string{
		r.getQueueKey(params.RoomID),
		r.getEntryKey(params.RoomID, params.Key),
		r.getRemovedEntryKey(params.RoomID, params.Key),
	}, params.Key, params.KeepFor.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}

	if removed == 0 {
		return room.ErrEntryNotFound
	}

	r.publish(ctx, r.rc, params.RoomID, room.NodeQueue)

	return nil
}

// GetRemovedEntry returns an entry removed within its undo window.
func (r repo) GetRemovedEntry(ctx context.Context, roomId, key string) (domain.Entry, error) {
	m, err := r.rc.HGetAll(ctx, r.getRemovedEntryKey(roomId, key)).Result()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to get removed entry: %w", err)
	}

	if len(m) == 0 {
		return domain.Entry{}, room.ErrEntryNotFound
	}

	return r.parseEntry(key, m), nil
}

// RestoreEntry moves a removed entry back into the queue under its old key
// and position. It never overwrites a queued entry.
func (r repo) RestoreEntry(ctx context.Context, params *room.RestoreEntryParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	res, err := r.rc.EvalSha(ctx, r.restoreEntryScript, []string{
		r.getRemovedEntryKey(params.RoomID, params.Key),
		r.getEntryKey(params.RoomID, params.Key),
		r.getQueueKey(params.RoomID),
	}, params.Key, params.Limit, r.expireDuration.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to restore entry: %w", err)
	}

	switch res {
	case -1:
		return room.ErrEntryNotFound
	case -2:
		return room.ErrEntryExists
	case -3:
		return room.ErrQueueFull
	}

	r.publish(ctx, r.rc, params.RoomID, room.NodeQueue)

	return nil
}

// UpdateEntry fills in late-resolved metadata. It never recreates a removed entry.
func (r repo) UpdateEntry(ctx context.Context, params *room.UpdateEntryParams) error {
	fields := make(map[string]any)
	if params.Duration != nil {
		fields["duration"] = *params.Duration
	}
	if params.Title != nil {
		fields["title"] = *params.Title
	}
	if params.Artist != nil {
		fields["artist"] = *params.Artist
	}
	if params.Thumbnail != nil {
		fields["thumbnail"] = *params.Thumbnail
	}

	if len(fields) == 0 {
		return nil
	}

	ok, err := r.mergeHash(ctx, r.rc, r.getEntryKey(params.RoomID, params.Key), fields, nil)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	if !ok {
		return room.ErrEntryNotFound
	}

	r.publish(ctx, r.rc, params.RoomID, room.NodeQueue)

	return nil
}

// SetEntryOrders writes explicit sort keys. Keys of removed entries are skipped.
func (r repo) SetEntryOrders(ctx context.Context, params *room.SetEntryOrdersParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.Pipeline()

	for key, order := range params.Orders {
		pipe.EvalSha(ctx, r.mergeHashScript, []string{r.getEntryKey(params.RoomID, key)}, 1, "order", order)
	}
	r.publish(ctx, pipe, params.RoomID, room.NodeQueue)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set entry orders: %w", err)
	}

	return nil
}
