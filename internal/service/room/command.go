package room

import (
	"context"
	"fmt"
	"time"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

// commandMaxAge bounds how long a relayed command waits for a leader.
// Older commands are dropped instead of replayed.
const commandMaxAge = 30 * time.Second

type ControlParams struct {
	RoomID string
	// SessionID is empty for participants without a host session.
	SessionID string
	User      domain.User
	Action    domain.Action
	SeekTo    *float64
	Key       string
	Volume    *int
}

type ControlResponse struct {
	// Executed is true when the caller was the leader and the action ran
	// directly, false when it was handed to the leader through the command slot.
	Executed bool
	Playback domain.Playback
}

func validateCommand(action domain.Action, seekTo *float64, key string) error {
	if _, err := domain.ParseAction(string(action)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch action {
	case domain.ActionSeek:
		if seekTo == nil {
			return fmt.Errorf("%w: seek requires a target", ErrInvalidCommand)
		}
	case domain.ActionPlayByKey:
		if key == "" {
			return fmt.Errorf("%w: playByKey requires a key", ErrInvalidCommand)
		}
	}

	return nil
}

// Control applies the permission gate, then either executes the action (leader)
// or writes it to the command slot for the leader to consume.
func (s *service) Control(ctx context.Context, params *ControlParams) (ControlResponse, error) {
	if err := validateCommand(params.Action, params.SeekTo, params.Key); err != nil {
		return ControlResponse{}, err
	}

	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return ControlResponse{}, err
	}

	leader, err := s.isLeader(ctx, params.RoomID, params.SessionID)
	if err != nil {
		return ControlResponse{}, err
	}

	if !s.canControl(info, leader, params.User) {
		return ControlResponse{}, ErrPermissionDenied
	}

	now := s.nowMillis()
	if err := s.roomRepo.SetLastController(ctx, &room.SetLastControllerParams{
		RoomID: params.RoomID,
		LastController: domain.LastController{
			UserID:    params.User.ID,
			Name:      params.User.Name,
			Action:    params.Action,
			Timestamp: now,
		},
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to set last controller", "room_id", params.RoomID, "error", err)
	}

	cmd := domain.Command{
		Action:    params.Action,
		SeekTo:    params.SeekTo,
		Key:       params.Key,
		Timestamp: now,
		IssuedBy:  params.User.ID,
	}

	if leader {
		pb, err := s.execute(ctx, params.RoomID, cmd, params.Volume)
		if err != nil {
			return ControlResponse{}, err
		}
		return ControlResponse{Executed: true, Playback: pb}, nil
	}

	if err := s.roomRepo.SetCommand(ctx, &room.SetCommandParams{
		RoomID:  params.RoomID,
		Command: cmd,
	}); err != nil {
		return ControlResponse{}, fmt.Errorf("failed to set command: %w", err)
	}

	s.refreshExpiry(ctx, params.RoomID)
	s.logger.DebugContext(ctx, "command relayed", "room_id", params.RoomID, "action", params.Action)

	return ControlResponse{}, nil
}

type ConsumeCommandParams struct {
	RoomID    string
	SessionID string
	Volume    *int
}

type ConsumeCommandResponse struct {
	Command  *domain.Command
	Playback domain.Playback
}

// ConsumeCommand takes the pending command, if any, and runs exactly one
// state machine operation for it. Only the leader consumes.
func (s *service) ConsumeCommand(ctx context.Context, params *ConsumeCommandParams) (ConsumeCommandResponse, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return ConsumeCommandResponse{}, err
	}

	cmd, err := s.roomRepo.TakeCommand(ctx, params.RoomID)
	if err != nil {
		return ConsumeCommandResponse{}, fmt.Errorf("failed to take command: %w", err)
	}

	if cmd == nil {
		return ConsumeCommandResponse{}, nil
	}

	if err := validateCommand(cmd.Action, cmd.SeekTo, cmd.Key); err != nil {
		s.logger.WarnContext(ctx, "dropping invalid command", "room_id", params.RoomID, "error", err)
		return ConsumeCommandResponse{Command: cmd}, nil
	}

	if age := time.Duration(s.nowMillis()-cmd.Timestamp) * time.Millisecond; age > commandMaxAge {
		s.logger.InfoContext(ctx, "dropping stale command", "room_id", params.RoomID, "action", cmd.Action, "age", age)
		return ConsumeCommandResponse{Command: cmd}, nil
	}

	pb, err := s.execute(ctx, params.RoomID, *cmd, params.Volume)
	if err != nil {
		return ConsumeCommandResponse{Command: cmd}, err
	}

	s.logger.DebugContext(ctx, "command consumed", "room_id", params.RoomID, "action", cmd.Action)

	return ConsumeCommandResponse{Command: cmd, Playback: pb}, nil
}

func (s *service) execute(ctx context.Context, roomId string, cmd domain.Command, volume *int) (domain.Playback, error) {
	switch cmd.Action {
	case domain.ActionRestart:
		return s.restart(ctx, roomId)
	case domain.ActionPrevious:
		return s.advanceToPrevious(ctx, roomId, volume)
	case domain.ActionNext:
		return s.advanceToNext(ctx, roomId, volume)
	case domain.ActionSeek:
		return s.seek(ctx, roomId, *cmd.SeekTo)
	case domain.ActionPlayByKey:
		return s.playByKey(ctx, roomId, cmd.Key, volume)
	case domain.ActionPause:
		return s.pause(ctx, roomId)
	case domain.ActionResume:
		return s.resume(ctx, roomId, volume)
	default:
		return domain.Playback{}, fmt.Errorf("%w: %s", ErrInvalidCommand, cmd.Action)
	}
}
