package room

import (
	"context"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

// Subscribe streams change notifications of a room until ctx is done.
func (s *service) Subscribe(ctx context.Context, roomId string) (<-chan room.Event, error) {
	if _, err := s.getRoomInfo(ctx, roomId); err != nil {
		return nil, err
	}

	events, err := s.roomRepo.Subscribe(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	return events, nil
}

func (s *service) GetPlayback(ctx context.Context, roomId string) (domain.Playback, error) {
	return s.getPlayback(ctx, roomId)
}

func (s *service) GetLastController(ctx context.Context, roomId string) (*domain.LastController, error) {
	lc, err := s.roomRepo.GetLastController(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to get last controller: %w", err)
	}

	return lc, nil
}
