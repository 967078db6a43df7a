package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

type commandHash struct {
	Action    string   `redis:"action"`
	SeekTo    *float64 `redis:"seek_to"`
	Key       string   `redis:"key"`
	Timestamp int64    `redis:"timestamp"`
	IssuedBy  string   `redis:"issued_by"`
}

type lastControllerHash struct {
	UserID    string `redis:"user_id"`
	Name      string `redis:"name"`
	Action    string `redis:"action"`
	Timestamp int64  `redis:"timestamp"`
}

func (r repo) getCommandKey(roomId string) string {
	return "room:" + roomId + ":command"
}

func (r repo) getLastControllerKey(roomId string) string {
	return "room:" + roomId + ":last-controller"
}

// SetCommand overwrites the single command slot. The last write wins.
func (r repo) SetCommand(ctx context.Context, params *room.SetCommandParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	c := params.Command
	commandKey := r.getCommandKey(params.RoomID)
	pipe.Del(ctx, commandKey)
	r.HSetStruct(ctx, pipe, commandKey, commandHash{
		Action:    string(c.Action),
		SeekTo:    c.SeekTo,
		Key:       c.Key,
		Timestamp: c.Timestamp,
		IssuedBy:  c.IssuedBy,
	})
	pipe.Expire(ctx, commandKey, r.expireDuration)
	r.publish(ctx, pipe, params.RoomID, room.NodeCommand)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set command: %w", err)
	}

	return nil
}

// TakeCommand atomically reads and clears the command slot. It returns nil
// when the slot is empty, so a command is handed out at most once.
func (r repo) TakeCommand(ctx context.Context, roomId string) (*domain.Command, error) {
	pipe := r.rc.TxPipeline()

	commandKey := r.getCommandKey(roomId)
	getCmd := pipe.HGetAll(ctx, commandKey)
	pipe.Del(ctx, commandKey)

	if err := r.executePipe(ctx, pipe); err != nil {
		return nil, fmt.Errorf("failed to take command: %w", err)
	}

	m := getCmd.Val()
	if len(m) == 0 {
		return nil, nil
	}

	return &domain.Command{
		Action:    domain.Action(m["action"]),
		SeekTo:    r.fieldToFloat64Ptr(m, "seek_to"),
		Key:       m["key"],
		Timestamp: r.fieldToInt64(m["timestamp"]),
		IssuedBy:  m["issued_by"],
	}, nil
}

func (r repo) SetLastController(ctx context.Context, params *room.SetLastControllerParams) error {
	pipe := r.rc.TxPipeline()

	lc := params.LastController
	key := r.getLastControllerKey(params.RoomID)
	r.HSetStruct(ctx, pipe, key, lastControllerHash{
		UserID:    lc.UserID,
		Name:      lc.Name,
		Action:    string(lc.Action),
		Timestamp: lc.Timestamp,
	})
	pipe.Expire(ctx, key, r.expireDuration)
	r.publish(ctx, pipe, params.RoomID, room.NodeLastController)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set last controller: %w", err)
	}

	return nil
}

func (r repo) GetLastController(ctx context.Context, roomId string) (*domain.LastController, error) {
	res := r.rc.HGetAll(ctx, r.getLastControllerKey(roomId))
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to get last controller: %w", err)
	}

	if len(res.Val()) == 0 {
		return nil, nil
	}

	var h lastControllerHash
	if err := res.Scan(&h); err != nil {
		return nil, fmt.Errorf("failed to scan last controller: %w", err)
	}

	return &domain.LastController{
		UserID:    h.UserID,
		Name:      h.Name,
		Action:    domain.Action(h.Action),
		Timestamp: h.Timestamp,
	}, nil
}
