package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
	o "github.com/skewb1k/goutils/optional"
)

const maxRoomIDAttempts = 10

type CreateRoomParams struct {
	Name  string
	User  domain.User
	Reuse bool
}

type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
	Reused bool   `json:"reused"`
}

// CreateRoom creates a room, or finds one when the name is a #CODE lookup.
// An existing name yields ErrRoomNameTaken together with the existing id
// unless Reuse is set.
func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	name := strings.TrimSpace(params.Name)

	if code, ok := strings.CutPrefix(name, "#"); ok {
		roomId := strings.ToUpper(strings.TrimSpace(code))
		exists, err := s.roomRepo.IsRoomExists(ctx, roomId)
		if err != nil {
			return CreateRoomResponse{}, fmt.Errorf("failed to check if room exists: %w", err)
		}
		if !exists {
			return CreateRoomResponse{}, ErrRoomNotFound
		}

		if err := s.roomRepo.ResetCommand(ctx, roomId); err != nil {
			return CreateRoomResponse{}, fmt.Errorf("failed to reset command: %w", err)
		}
		s.refreshExpiry(ctx, roomId)

		return CreateRoomResponse{RoomID: roomId, Reused: true}, nil
	}

	existingId, err := s.roomRepo.GetRoomIDByName(ctx, name)
	switch {
	case err == nil:
		if !params.Reuse {
			return CreateRoomResponse{RoomID: existingId}, ErrRoomNameTaken
		}
		return s.reuseRoom(ctx, existingId, name)
	case errors.Is(err, room.ErrRoomNotFound):
	default:
		return CreateRoomResponse{}, fmt.Errorf("failed to get room by name: %w", err)
	}

	roomId, err := s.reserveRoomID(ctx)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	if err := s.roomRepo.CreateRoom(ctx, &room.CreateRoomParams{
		RoomID:      roomId,
		Name:        name,
		CreatedAt:   s.nowMillis(),
		CreatedBy:   params.User.ID,
		CreatorName: params.User.Name,
		Playback:    domain.IdlePlayback(domain.DefaultVolume),
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	s.logger.InfoContext(ctx, "room created", "room_id", roomId, "name", name)

	return CreateRoomResponse{RoomID: roomId}, nil
}

func (s *service) reuseRoom(ctx context.Context, roomId, name string) (CreateRoomResponse, error) {
	if err := s.roomRepo.SetRoomName(ctx, &room.SetRoomNameParams{RoomID: roomId, Name: name}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set room name: %w", err)
	}

	if err := s.roomRepo.ResetCommand(ctx, roomId); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to reset command: %w", err)
	}

	s.refreshExpiry(ctx, roomId)
	s.logger.InfoContext(ctx, "room reused", "room_id", roomId)

	return CreateRoomResponse{RoomID: roomId, Reused: true}, nil
}

func (s *service) reserveRoomID(ctx context.Context) (string, error) {
	for range maxRoomIDAttempts {
		roomId := s.generator.GenerateRandomString(roomIDLength)
		ok, err := s.roomRepo.ReserveRoomID(ctx, roomId)
		if err != nil {
			return "", fmt.Errorf("failed to reserve room id: %w", err)
		}
		if ok {
			return roomId, nil
		}
	}

	return "", errors.New("failed to generate a unique room id")
}

func (s *service) GetRoom(ctx context.Context, roomId string) (domain.RoomInfo, error) {
	return s.getRoomInfo(ctx, roomId)
}

// ListRooms returns public rooms, newest first.
func (s *service) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	infos, err := s.roomRepo.ListRoomInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	public := make([]domain.RoomInfo, 0, len(infos))
	for _, info := range infos {
		if !info.Private {
			public = append(public, info)
		}
	}

	sort.Slice(public, func(i, j int) bool {
		return public[i].CreatedAt > public[j].CreatedAt
	})

	return public, nil
}

func (s *service) GetRoomState(ctx context.Context, roomId, userId string) (RoomState, error) {
	info, err := s.getRoomInfo(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	queue, err := s.getSortedQueue(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	sessions, err := s.getSessions(ctx, roomId)
	if err != nil {
		return RoomState{}, err
	}

	lastController, err := s.roomRepo.GetLastController(ctx, roomId)
	if err != nil {
		return RoomState{}, fmt.Errorf("failed to get last controller: %w", err)
	}

	state := RoomState{
		Info:           info,
		Playback:       pb,
		Queue:          queue,
		SessionCount:   len(sessions),
		LastController: lastController,
		ServerTime:     s.nowMillis(),
	}

	if pb.VideoID != "" {
		l, err := s.likesRepo.Get(ctx, pb.VideoID, userId)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to get likes", "video_id", pb.VideoID, "error", err)
		} else {
			state.Likes = &l
		}
	}

	return state, nil
}

type UpdateSettingsParams struct {
	RoomID        string
	SessionID     string
	User          domain.User
	Private       o.Field[bool]
	SharedControl o.Field[bool]
	Shuffle       o.Field[bool]
	Repeat        o.Field[domain.RepeatMode]
}

// UpdateSettings changes room flags. Privacy and shared control are leader-only,
// shuffle and repeat pass the control gate. Settings cannot be cleared.
func (s *service) UpdateSettings(ctx context.Context, params *UpdateSettingsParams) (domain.RoomInfo, error) {
	if !params.Private.Defined && !params.SharedControl.Defined && !params.Shuffle.Defined && !params.Repeat.Defined {
		return domain.RoomInfo{}, fmt.Errorf("%w: no settings to update", ErrInvalidCommand)
	}

	for name, f := range map[string]o.Field[bool]{
		"private":        params.Private,
		"shared_control": params.SharedControl,
		"shuffle":        params.Shuffle,
	} {
		if f.Defined && f.Value == nil {
			return domain.RoomInfo{}, fmt.Errorf("%w: %s must not be null", ErrInvalidCommand, name)
		}
	}

	if params.Repeat.Defined && (params.Repeat.Value == nil || !params.Repeat.Value.Valid()) {
		return domain.RoomInfo{}, fmt.Errorf("%w: invalid repeat mode", ErrInvalidCommand)
	}

	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return domain.RoomInfo{}, err
	}

	leader, err := s.isLeader(ctx, params.RoomID, params.SessionID)
	if err != nil {
		return domain.RoomInfo{}, err
	}

	if (params.Private.Defined || params.SharedControl.Defined) && !leader {
		return domain.RoomInfo{}, ErrNotLeader
	}

	if (params.Shuffle.Defined || params.Repeat.Defined) && !s.canControl(info, leader, params.User) {
		return domain.RoomInfo{}, ErrPermissionDenied
	}

	if err := s.roomRepo.UpdateRoomSettings(ctx, &room.UpdateRoomSettingsParams{
		RoomID:        params.RoomID,
		Private:       params.Private.Value,
		SharedControl: params.SharedControl.Value,
		Shuffle:       params.Shuffle.Value,
		Repeat:        params.Repeat.Value,
	}); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return domain.RoomInfo{}, ErrRoomNotFound
		}
		return domain.RoomInfo{}, fmt.Errorf("failed to update room settings: %w", err)
	}

	return s.getRoomInfo(ctx, params.RoomID)
}

type DeleteRoomParams struct {
	RoomID    string
	SessionID string
}

func (s *service) DeleteRoom(ctx context.Context, params *DeleteRoomParams) error {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return err
	}

	if err := s.roomRepo.DeleteRoom(ctx, params.RoomID); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to delete room: %w", err)
	}

	s.logger.InfoContext(ctx, "room deleted", "room_id", params.RoomID)

	return nil
}
