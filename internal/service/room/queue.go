package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

const (
	metadataLookupTimeout = 15 * time.Second
	// removed entries can be restored for this long
	undoWindow = 30 * time.Second
)

type AddEntryParams struct {
	RoomID    string
	SessionID string
	User      domain.User
	VideoID   string
	Title     string
	Artist    string
	Thumbnail string
	// Duration is known when the client already resolved it.
	Duration *float64
	Volume   *int
}

type AddEntryResponse struct {
	Entry domain.Entry
	// Played is set when the room was idle and the new entry started playing.
	Played bool
}

func (s *service) AddEntry(ctx context.Context, params *AddEntryParams) (AddEntryResponse, error) {
	if _, err := s.getRoomInfo(ctx, params.RoomID); err != nil {
		return AddEntryResponse{}, err
	}

	length, err := s.roomRepo.GetQueueLength(ctx, params.RoomID)
	if err != nil {
		return AddEntryResponse{}, fmt.Errorf("failed to get queue length: %w", err)
	}

	if s.queueLimit > 0 && length >= s.queueLimit {
		return AddEntryResponse{}, ErrQueueLimitReached
	}

	now := s.nowMillis()
	entry := domain.Entry{
		Key:             uuid.NewString(),
		VideoID:         params.VideoID,
		Title:           params.Title,
		Artist:          params.Artist,
		Thumbnail:       params.Thumbnail,
		RequestedBy:     params.User.ID,
		RequestedByName: params.User.Name,
		CreatedAt:       now,
		Order:           ptr(now),
	}
	if params.Duration != nil {
		entry.Duration = *params.Duration
	}

	if err := s.roomRepo.AddEntry(ctx, &room.AddEntryParams{RoomID: params.RoomID, Entry: entry}); err != nil {
		return AddEntryResponse{}, fmt.Errorf("failed to add entry: %w", err)
	}

	s.refreshExpiry(ctx, params.RoomID)

	played, err := s.playIfIdle(ctx, params.RoomID, params.SessionID, entry, params.Volume)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to start added entry", "room_id", params.RoomID, "error", err)
	}

	// started after playIfIdle so a late result also reaches the playback record
	needMetadata := entry.Title == "" || entry.Artist == "" || entry.Thumbnail == ""
	if params.Duration == nil || needMetadata {
		s.resolveEntryAsync(params.RoomID, entry, params.Duration == nil, needMetadata)
	}

	return AddEntryResponse{Entry: entry, Played: played}, nil
}

// playIfIdle starts entry when nothing is playing and the caller is a host
// session. A follower hands the start to the leader.
func (s *service) playIfIdle(ctx context.Context, roomId, sessionId string, entry domain.Entry, volume *int) (bool, error) {
	if sessionId == "" {
		return false, nil
	}

	stored, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return false, err
	}

	if stored.Status != domain.StatusIdle && stored.VideoID != "" {
		return false, nil
	}

	leader, err := s.isLeader(ctx, roomId, sessionId)
	if err != nil {
		return false, err
	}

	if leader {
		if _, err := s.playTrack(ctx, roomId, entry, volume, stored); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.roomRepo.SetCommand(ctx, &room.SetCommandParams{
		RoomID: roomId,
		Command: domain.Command{
			Action:    domain.ActionPlayByKey,
			Key:       entry.Key,
			Timestamp: s.nowMillis(),
			IssuedBy:  entry.RequestedBy,
		},
	}); err != nil {
		return false, fmt.Errorf("failed to set command: %w", err)
	}

	return false, nil
}

// resolveEntryAsync fills duration and metadata after insertion. A failed
// lookup leaves the duration at zero.
func (s *service) resolveEntryAsync(roomId string, entry domain.Entry, needDuration, needMetadata bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), metadataLookupTimeout)
		defer cancel()

		params := room.UpdateEntryParams{RoomID: roomId, Key: entry.Key}

		if needDuration {
			d, err := s.videoData.Duration(ctx, entry.VideoID)
			if err != nil {
				s.logger.InfoContext(ctx, "duration lookup failed", "video_id", entry.VideoID, "error", err)
			} else {
				params.Duration = &d
			}
		}

		if needMetadata {
			data, err := s.videoData.Get(ctx, entry.VideoID)
			if err != nil {
				s.logger.InfoContext(ctx, "metadata lookup failed", "video_id", entry.VideoID, "error", err)
			} else {
				if entry.Title == "" && data.Title != "" {
					params.Title = &data.Title
				}
				if entry.Artist == "" && data.AuthorName != "" {
					params.Artist = &data.AuthorName
				}
				if entry.Thumbnail == "" && data.ThumbnailUrl != "" {
					params.Thumbnail = &data.ThumbnailUrl
				}
			}
		}

		if err := s.roomRepo.UpdateEntry(ctx, &params); err != nil && !errors.Is(err, room.ErrEntryNotFound) {
			s.logger.WarnContext(ctx, "failed to update entry", "room_id", roomId, "key", entry.Key, "error", err)
			return
		}

		s.syncPlayingEntry(ctx, &params)
	}()
}

// syncPlayingEntry copies late-resolved entry data onto the playback record
// when that entry is the one playing, so seek clamping sees the duration.
func (s *service) syncPlayingEntry(ctx context.Context, params *room.UpdateEntryParams) {
	pb, err := s.roomRepo.GetPlayback(ctx, params.RoomID)
	if err != nil || pb.QueueKey != params.Key {
		return
	}

	if params.Duration == nil && params.Title == nil && params.Artist == nil && params.Thumbnail == nil {
		return
	}

	if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:    params.RoomID,
		Duration:  params.Duration,
		Title:     params.Title,
		Artist:    params.Artist,
		Thumbnail: params.Thumbnail,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to sync playing entry", "room_id", params.RoomID, "error", err)
	}
}

type RemoveEntryParams struct {
	RoomID    string
	SessionID string
	User      domain.User
	Key       string
	Volume    *int
}

// RemoveEntry deletes an entry and returns it so the client can offer undo.
// The entry stays restorable by key for the undo window. Removing the playing
// entry first moves playback on.
func (s *service) RemoveEntry(ctx context.Context, params *RemoveEntryParams) (domain.Entry, error) {
	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return domain.Entry{}, err
	}

	entry, err := s.roomRepo.GetEntry(ctx, params.RoomID, params.Key)
	if err != nil {
		if errors.Is(err, room.ErrEntryNotFound) {
			return domain.Entry{}, ErrEntryNotFound
		}
		return domain.Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}

	leader, err := s.isLeader(ctx, params.RoomID, params.SessionID)
	if err != nil {
		return domain.Entry{}, err
	}

	if entry.RequestedBy != params.User.ID && !s.canControl(info, leader, params.User) {
		return domain.Entry{}, ErrPermissionDenied
	}

	pb, err := s.getPlayback(ctx, params.RoomID)
	if err != nil {
		return domain.Entry{}, err
	}

	if pb.QueueKey == params.Key && pb.Status != domain.StatusIdle {
		if err := s.skipRemoved(ctx, params, info, leader, pb); err != nil {
			return domain.Entry{}, err
		}
	}

	if err := s.roomRepo.RemoveEntry(ctx, &room.RemoveEntryParams{
		RoomID:  params.RoomID,
		Key:     params.Key,
		KeepFor: undoWindow,
	}); err != nil {
		if errors.Is(err, room.ErrEntryNotFound) {
			return domain.Entry{}, ErrEntryNotFound
		}
		return domain.Entry{}, fmt.Errorf("failed to remove entry: %w", err)
	}

	return entry, nil
}

func (s *service) skipRemoved(ctx context.Context, params *RemoveEntryParams, info domain.RoomInfo, leader bool, pb domain.Playback) error {
	queue, err := s.getSortedQueue(ctx, params.RoomID)
	if err != nil {
		return err
	}

	var next *domain.Entry
	if i := domain.NextIndex(queue, params.Key, info.Shuffle, s.intn); i >= 0 && queue[i].Key != params.Key {
		next = &queue[i]
	}

	if leader {
		if next == nil {
			_, err = s.setIdle(ctx, params.RoomID, pb)
		} else {
			_, err = s.playTrack(ctx, params.RoomID, *next, params.Volume, pb)
		}
		return err
	}

	// the leader resolves "next" against the queue after the removal, so name
	// the successor explicitly while it is still known
	cmd := domain.Command{
		Action:    domain.ActionNext,
		Timestamp: s.nowMillis(),
		IssuedBy:  params.User.ID,
	}
	if next != nil {
		cmd.Action = domain.ActionPlayByKey
		cmd.Key = next.Key
	}

	if err := s.roomRepo.SetCommand(ctx, &room.SetCommandParams{RoomID: params.RoomID, Command: cmd}); err != nil {
		return fmt.Errorf("failed to set command: %w", err)
	}

	return nil
}

type RestoreEntryParams struct {
	RoomID    string
	SessionID string
	User      domain.User
	Key       string
}

// RestoreEntry undoes a removal made within the undo window. The entry comes
// back with its stored data under its old key.
func (s *service) RestoreEntry(ctx context.Context, params *RestoreEntryParams) (domain.Entry, error) {
	if params.Key == "" {
		return domain.Entry{}, fmt.Errorf("%w: entry key is required", ErrInvalidCommand)
	}

	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return domain.Entry{}, err
	}

	entry, err := s.roomRepo.GetRemovedEntry(ctx, params.RoomID, params.Key)
	if err != nil {
		if errors.Is(err, room.ErrEntryNotFound) {
			return domain.Entry{}, ErrEntryNotFound
		}
		return domain.Entry{}, fmt.Errorf("failed to get removed entry: %w", err)
	}

	leader, err := s.isLeader(ctx, params.RoomID, params.SessionID)
	if err != nil {
		return domain.Entry{}, err
	}

	if entry.RequestedBy != params.User.ID && !s.canControl(info, leader, params.User) {
		return domain.Entry{}, ErrPermissionDenied
	}

	err = s.roomRepo.RestoreEntry(ctx, &room.RestoreEntryParams{
		RoomID: params.RoomID,
		Key:    params.Key,
		Limit:  s.queueLimit,
	})
	switch {
	case err == nil:
	case errors.Is(err, room.ErrEntryNotFound):
		return domain.Entry{}, ErrEntryNotFound
	case errors.Is(err, room.ErrQueueFull):
		return domain.Entry{}, ErrQueueLimitReached
	case errors.Is(err, room.ErrEntryExists):
		return domain.Entry{}, fmt.Errorf("%w: entry is already queued", ErrInvalidCommand)
	default:
		return domain.Entry{}, fmt.Errorf("failed to restore entry: %w", err)
	}

	s.refreshExpiry(ctx, params.RoomID)

	return entry, nil
}

type ReorderQueueParams struct {
	RoomID    string
	SessionID string
	User      domain.User
	Keys      []string
}

// ReorderQueue writes order = index for every key, matching the dropped sequence.
func (s *service) ReorderQueue(ctx context.Context, params *ReorderQueueParams) ([]domain.Entry, error) {
	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return nil, err
	}

	leader, err := s.isLeader(ctx, params.RoomID, params.SessionID)
	if err != nil {
		return nil, err
	}

	if !s.canControl(info, leader, params.User) {
		return nil, ErrPermissionDenied
	}

	orders := make(map[string]int64, len(params.Keys))
	for i, key := range params.Keys {
		orders[key] = int64(i)
	}

	if err := s.roomRepo.SetEntryOrders(ctx, &room.SetEntryOrdersParams{RoomID: params.RoomID, Orders: orders}); err != nil {
		return nil, fmt.Errorf("failed to reorder queue: %w", err)
	}

	return s.getSortedQueue(ctx, params.RoomID)
}

func (s *service) GetQueue(ctx context.Context, roomId string) ([]domain.Entry, error) {
	return s.getSortedQueue(ctx, roomId)
}
