package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

type playbackHash struct {
	Status          string   `redis:"status"`
	VideoID         *string  `redis:"video_id"`
	Title           string   `redis:"title"`
	Artist          string   `redis:"artist"`
	Thumbnail       *string  `redis:"thumbnail"`
	RequestedBy     *string  `redis:"requested_by"`
	RequestedByName *string  `redis:"requested_by_name"`
	QueueKey        *string  `redis:"queue_key"`
	Duration        float64  `redis:"duration"`
	Volume          int      `redis:"volume"`
	StartedAt       *int64   `redis:"started_at"`
	CurrentTime     *float64 `redis:"current_time"`
	Interrupted     bool     `redis:"interrupted"`
}

func (r repo) getPlaybackKey(roomId string) string {
	return "room:" + roomId + ":playback"
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r repo) toPlaybackHash(p domain.Playback) playbackHash {
	return playbackHash{
		Status:          string(p.Status),
		VideoID:         nonEmpty(p.VideoID),
		Title:           p.Title,
		Artist:          p.Artist,
		Thumbnail:       nonEmpty(p.Thumbnail),
		RequestedBy:     nonEmpty(p.RequestedBy),
		RequestedByName: nonEmpty(p.RequestedByName),
		QueueKey:        nonEmpty(p.QueueKey),
		Duration:        p.Duration,
		Volume:          p.Volume,
		StartedAt:       p.StartedAt,
		CurrentTime:     p.CurrentTime,
		Interrupted:     p.Interrupted,
	}
}

func (r repo) parsePlayback(m map[string]string) domain.Playback {
	status := domain.Status(m["status"])
	if status == "" {
		status = domain.StatusIdle
	}

	return domain.Playback{
		Status:          status,
		VideoID:         m["video_id"],
		Title:           m["title"],
		Artist:          m["artist"],
		Thumbnail:       m["thumbnail"],
		RequestedBy:     m["requested_by"],
		RequestedByName: m["requested_by_name"],
		QueueKey:        m["queue_key"],
		Duration:        r.fieldToFloat64(m["duration"]),
		Volume:          r.fieldToInt(m["volume"]),
		StartedAt:       r.fieldToInt64Ptr(m, "started_at"),
		CurrentTime:     r.fieldToFloat64Ptr(m, "current_time"),
		Interrupted:     r.fieldToBool(m["interrupted"]),
	}
}

// SetPlayback replaces the whole playback record.
func (r repo) SetPlayback(ctx context.Context, params *room.SetPlaybackParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	playbackKey := r.getPlaybackKey(params.RoomID)
	pipe.Del(ctx, playbackKey)
	r.HSetStruct(ctx, pipe, playbackKey, r.toPlaybackHash(params.Playback))
	pipe.Expire(ctx, playbackKey, r.expireDuration)
	r.publish(ctx, pipe, params.RoomID, room.NodePlayback)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set playback: %w", err)
	}

	return nil
}

// SetPlaybackIfQueueKey replaces the record only while it still references
// the expected queue entry. It reports whether the write happened.
func (r repo) SetPlaybackIfQueueKey(ctx context.Context, params *room.SetPlaybackIfQueueKeyParams) (bool, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	args := []interface{}{
		params.ExpectedQueueKey,
		r.encodeEvent(room.NodePlayback, ""),
		int64(r.expireDuration.Seconds()),
	}
	args = append(args, r.flatten(r.structToFields(r.toPlaybackHash(params.Playback)))...)

	res, err := r.rc.EvalSha(ctx, r.setPlaybackIfQueueKeyScript,
		[]string{r.getPlaybackKey(params.RoomID), r.getEventsChannel(params.RoomID)},
		args...,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set playback: %w", err)
	}

	return res == 1, nil
}

func (r repo) UpdatePlayback(ctx context.Context, params *room.UpdatePlaybackParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	set := make(map[string]any)
	if params.Status != nil {
		set["status"] = string(*params.Status)
	}
	if params.Duration != nil {
		set["duration"] = *params.Duration
	}
	if params.Title != nil {
		set["title"] = *params.Title
	}
	if params.Artist != nil {
		set["artist"] = *params.Artist
	}
	if params.Thumbnail != nil {
		set["thumbnail"] = *params.Thumbnail
	}

	var del []string
	del = mergeField(set, del, "started_at", params.StartedAt)
	del = mergeField(set, del, "current_time", params.CurrentTime)
	del = mergeField(set, del, "interrupted", params.Interrupted)

	ok, err := r.mergeHash(ctx, r.rc, r.getPlaybackKey(params.RoomID), set, del)
	if err != nil {
		return fmt.Errorf("failed to update playback: %w", err)
	}

	if !ok {
		return room.ErrPlaybackNotFound
	}

	r.publish(ctx, r.rc, params.RoomID, room.NodePlayback)

	return nil
}

func (r repo) GetPlayback(ctx context.Context, roomId string) (domain.Playback, error) {
	m, err := r.rc.HGetAll(ctx, r.getPlaybackKey(roomId)).Result()
	if err != nil {
		return domain.Playback{}, fmt.Errorf("failed to get playback: %w", err)
	}

	if len(m) == 0 {
		return domain.Playback{}, room.ErrPlaybackNotFound
	}

	return r.parsePlayback(m), nil
}
