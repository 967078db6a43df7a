package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

const (
	roomsKey     = "rooms"
	roomNamesKey = "room-names"
)

type infoHash struct {
	Name          string `redis:"name"`
	CreatedAt     int64  `redis:"created_at"`
	Private       bool   `redis:"private"`
	SharedControl bool   `redis:"shared_control"`
	Shuffle       bool   `redis:"shuffle"`
	Repeat        string `redis:"repeat"`
	CreatedBy     string `redis:"created_by"`
	CreatorName   string `redis:"creator_name"`
}

func (r repo) getInfoKey(roomId string) string {
	return "room:" + roomId + ":info"
}

func (r repo) getEventsChannel(roomId string) string {
	return "room:" + roomId + ":events"
}

// ReserveRoomID claims a room id. It reports false when the id is taken.
func (r repo) ReserveRoomID(ctx context.Context, roomId string) (bool, error) {
	added, err := r.rc.SAdd(ctx, roomsKey, roomId).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve room id: %w", err)
	}

	return added == 1, nil
}

func (r repo) CreateRoom(ctx context.Context, params *room.CreateRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	infoKey := r.getInfoKey(params.RoomID)
	r.HSetStruct(ctx, pipe, infoKey, infoHash{
		Name:        params.Name,
		CreatedAt:   params.CreatedAt,
		Repeat:      string(domain.RepeatAll),
		CreatedBy:   params.CreatedBy,
		CreatorName: params.CreatorName,
	})
	pipe.Expire(ctx, infoKey, r.expireDuration)
	pipe.SAdd(ctx, roomsKey, params.RoomID)
	pipe.HSet(ctx, roomNamesKey, params.Name, params.RoomID)

	playbackKey := r.getPlaybackKey(params.RoomID)
	pipe.Del(ctx, playbackKey)
	r.HSetStruct(ctx, pipe, playbackKey, r.toPlaybackHash(params.Playback))
	pipe.Expire(ctx, playbackKey, r.expireDuration)

	pipe.Del(ctx, r.getCommandKey(params.RoomID))
	r.publish(ctx, pipe, params.RoomID, room.NodeInfo)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

// ResetCommand clears the command slot of a reused room.
func (r repo) ResetCommand(ctx context.Context, roomId string) error {
	if err := r.rc.Del(ctx, r.getCommandKey(roomId)).Err(); err != nil {
		return fmt.Errorf("failed to reset command: %w", err)
	}

	return nil
}

func (r repo) IsRoomExists(ctx context.Context, roomId string) (bool, error) {
	res, err := r.rc.Exists(ctx, r.getInfoKey(roomId)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if room exists: %w", err)
	}

	return res > 0, nil
}

func (r repo) GetRoomIDByName(ctx context.Context, name string) (string, error) {
	roomId, err := r.rc.HGet(ctx, roomNamesKey, name).Result()
	if err != nil {
		if err == redis.Nil {
			return "", room.ErrRoomNotFound
		}
		return "", fmt.Errorf("failed to get room id by name: %w", err)
	}

	exists, err := r.IsRoomExists(ctx, roomId)
	if err != nil {
		return "", err
	}

	if !exists {
		// room expired, drop the stale index entry
		r.rc.HDel(ctx, roomNamesKey, name)
		r.rc.SRem(ctx, roomsKey, roomId)
		return "", room.ErrRoomNotFound
	}

	return roomId, nil
}

func (r repo) SetRoomName(ctx context.Context, params *room.SetRoomNameParams) error {
	info, err := r.GetRoomInfo(ctx, params.RoomID)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	if info.Name != params.Name {
		pipe.HDel(ctx, roomNamesKey, info.Name)
	}
	pipe.HSet(ctx, roomNamesKey, params.Name, params.RoomID)
	pipe.HSet(ctx, r.getInfoKey(params.RoomID), "name", params.Name)
	r.publish(ctx, pipe, params.RoomID, room.NodeInfo)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set room name: %w", err)
	}

	return nil
}

func (r repo) parseInfo(roomId string, h infoHash) domain.RoomInfo {
	repeat := domain.RepeatMode(h.Repeat)
	if !repeat.Valid() {
		repeat = domain.RepeatAll
	}

	return domain.RoomInfo{
		ID:            roomId,
		Name:          h.Name,
		CreatedAt:     h.CreatedAt,
		Private:       h.Private,
		SharedControl: h.SharedControl,
		Shuffle:       h.Shuffle,
		Repeat:        repeat,
		CreatedBy:     h.CreatedBy,
		CreatorName:   h.CreatorName,
	}
}

func (r repo) GetRoomInfo(ctx context.Context, roomId string) (domain.RoomInfo, error) {
	res := r.rc.HGetAll(ctx, r.getInfoKey(roomId))
	if err := res.Err(); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("failed to get room info: %w", err)
	}

	if len(res.Val()) == 0 {
		return domain.RoomInfo{}, room.ErrRoomNotFound
	}

	var h infoHash
	if err := res.Scan(&h); err != nil {
		return domain.RoomInfo{}, fmt.Errorf("failed to scan room info: %w", err)
	}

	return r.parseInfo(roomId, h), nil
}

func (r repo) ListRoomInfos(ctx context.Context) ([]domain.RoomInfo, error) {
	roomIds, err := r.rc.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(roomIds))
	for i, roomId := range roomIds {
		cmds[i] = pipe.HGetAll(ctx, r.getInfoKey(roomId))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get room infos: %w", err)
	}

	infos := make([]domain.RoomInfo, 0, len(roomIds))
	for i, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			// reserved but not created yet, or expired
			continue
		}

		var h infoHash
		if err := cmd.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan room info: %w", err)
		}
		infos = append(infos, r.parseInfo(roomIds[i], h))
	}

	return infos, nil
}

func (r repo) UpdateRoomSettings(ctx context.Context, params *room.UpdateRoomSettingsParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	fields := make(map[string]any)
	if params.Private != nil {
		fields["private"] = *params.Private
	}
	if params.SharedControl != nil {
		fields["shared_control"] = *params.SharedControl
	}
	if params.Shuffle != nil {
		fields["shuffle"] = *params.Shuffle
	}
	if params.Repeat != nil {
		fields["repeat"] = string(*params.Repeat)
	}

	if len(fields) == 0 {
		return nil
	}

	ok, err := r.mergeHash(ctx, r.rc, r.getInfoKey(params.RoomID), fields)
	if err != nil {
		return fmt.Errorf("failed to update room settings: %w", err)
	}

	if !ok {
		return room.ErrRoomNotFound
	}

	r.publish(ctx, r.rc, params.RoomID, room.NodeInfo)

	return nil
}

// RefreshRoomExpiry pushes the expiry of every key of the room forward.
func (r repo) RefreshRoomExpiry(ctx context.Context, roomId string) error {
	expireAt := time.Now().Add(r.expireDuration).Unix()
	if err := r.rc.EvalSha(ctx, r.expireKeysWithPrefixScript, nil, "room:"+roomId+":*", expireAt).Err(); err != nil {
		return fmt.Errorf("failed to refresh room expiry: %w", err)
	}

	return nil
}

func (r repo) DeleteRoom(ctx context.Context, roomId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	info, err := r.GetRoomInfo(ctx, roomId)
	if err != nil {
		return err
	}

	if err := r.rc.EvalSha(ctx, r.deleteKeysWithPrefixScript, nil,
		"room:"+roomId+":*",
		r.getSessionKeyPrefix(roomId)+"*",
		r.getRemovedEntryKeyPrefix(roomId)+"*",
	).Err(); err != nil {
		return fmt.Errorf("failed to delete room keys: %w", err)
	}

	pipe := r.rc.TxPipeline()
	pipe.HDel(ctx, roomNamesKey, info.Name)
	pipe.SRem(ctx, roomsKey, roomId)
	r.publish(ctx, pipe, roomId, room.NodeDeleted)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}
