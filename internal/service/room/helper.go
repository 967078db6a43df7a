package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
	o "github.com/skewb1k/goutils/optional"
)

func (s *service) getRoomInfo(ctx context.Context, roomId string) (domain.RoomInfo, error) {
	info, err := s.roomRepo.GetRoomInfo(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return domain.RoomInfo{}, ErrRoomNotFound
		}
		return domain.RoomInfo{}, fmt.Errorf("failed to get room info: %w", err)
	}

	return info, nil
}

func (s *service) getSessions(ctx context.Context, roomId string) ([]domain.Session, error) {
	sessions, err := s.roomRepo.GetSessions(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	return sessions, nil
}

// isLeader re-reads the live session set. Leadership is never cached.
func (s *service) isLeader(ctx context.Context, roomId, sessionId string) (bool, error) {
	if sessionId == "" {
		return false, nil
	}

	sessions, err := s.getSessions(ctx, roomId)
	if err != nil {
		return false, err
	}

	return domain.IsLeader(sessions, sessionId), nil
}

func (s *service) requireLeader(ctx context.Context, roomId, sessionId string) error {
	leader, err := s.isLeader(ctx, roomId, sessionId)
	if err != nil {
		return err
	}

	if !leader {
		return ErrNotLeader
	}

	return nil
}

// canControl is the gate applied before any playback control: the leader,
// the room creator, or anyone while shared control is on.
func (s *service) canControl(info domain.RoomInfo, isLeader bool, user domain.User) bool {
	return isLeader || (user.ID != "" && info.CreatedBy == user.ID) || info.SharedControl
}

func (s *service) getPlayback(ctx context.Context, roomId string) (domain.Playback, error) {
	pb, err := s.roomRepo.GetPlayback(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrPlaybackNotFound) {
			return domain.Playback{}, ErrRoomNotFound
		}
		return domain.Playback{}, fmt.Errorf("failed to get playback: %w", err)
	}

	return pb, nil
}

func (s *service) getSortedQueue(ctx context.Context, roomId string) ([]domain.Entry, error) {
	entries, err := s.roomRepo.GetQueue(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	return domain.SortEntries(entries), nil
}

func (s *service) refreshExpiry(ctx context.Context, roomId string) {
	if err := s.roomRepo.RefreshRoomExpiry(ctx, roomId); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh room expiry", "room_id", roomId, "error", err)
	}
}

func fieldOf[T any](v T) o.Field[T] {
	return o.Field[T]{Defined: true, Value: &v}
}

// clearedField removes the field on update.
func clearedField[T any]() o.Field[T] {
	return o.Field[T]{Defined: true}
}

func ptr[T any](v T) *T {
	return &v
}
