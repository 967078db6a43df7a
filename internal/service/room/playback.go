package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

type PlaybackParams struct {
	RoomID    string
	SessionID string
	// Volume is the output level reported by the leader's player, if known.
	Volume *int
}

func (s *service) buildTrack(entry domain.Entry, volume *int, stored domain.Playback) domain.Playback {
	vol := stored.Volume
	if volume != nil {
		vol = *volume
	}

	return domain.Playback{
		Status:          domain.StatusPlaying,
		VideoID:         entry.VideoID,
		Title:           entry.Title,
		Artist:          entry.Artist,
		Thumbnail:       entry.Thumbnail,
		RequestedBy:     entry.RequestedBy,
		RequestedByName: entry.RequestedByName,
		QueueKey:        entry.Key,
		Duration:        entry.Duration,
		Volume:          vol,
		StartedAt:       ptr(s.nowMillis()),
	}
}

func (s *service) writePlayback(ctx context.Context, roomId string, pb domain.Playback) error {
	if err := s.roomRepo.SetPlayback(ctx, &room.SetPlaybackParams{RoomID: roomId, Playback: pb}); err != nil {
		return fmt.Errorf("failed to set playback: %w", err)
	}

	return nil
}

func (s *service) playTrack(ctx context.Context, roomId string, entry domain.Entry, volume *int, stored domain.Playback) (domain.Playback, error) {
	pb := s.buildTrack(entry, volume, stored)
	if err := s.writePlayback(ctx, roomId, pb); err != nil {
		return domain.Playback{}, err
	}

	s.refreshExpiry(ctx, roomId)
	s.logger.DebugContext(ctx, "playing track", "room_id", roomId, "queue_key", entry.Key, "video_id", entry.VideoID)

	return pb, nil
}

// nextEntry picks the entry after currentKey, false when the queue is empty.
func (s *service) nextEntry(ctx context.Context, roomId, currentKey string) (domain.Entry, bool, error) {
	info, err := s.getRoomInfo(ctx, roomId)
	if err != nil {
		return domain.Entry{}, false, err
	}

	queue, err := s.getSortedQueue(ctx, roomId)
	if err != nil {
		return domain.Entry{}, false, err
	}

	i := domain.NextIndex(queue, currentKey, info.Shuffle, s.intn)
	if i < 0 {
		return domain.Entry{}, false, nil
	}

	return queue[i], true, nil
}

func (s *service) advanceToNext(ctx context.Context, roomId string, volume *int) (domain.Playback, error) {
	stored, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	entry, ok, err := s.nextEntry(ctx, roomId, stored.QueueKey)
	if err != nil {
		return domain.Playback{}, err
	}

	if !ok {
		return s.setIdle(ctx, roomId, stored)
	}

	return s.playTrack(ctx, roomId, entry, volume, stored)
}

func (s *service) advanceToPrevious(ctx context.Context, roomId string, volume *int) (domain.Playback, error) {
	stored, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	queue, err := s.getSortedQueue(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	i := domain.PrevIndex(queue, stored.QueueKey)
	if i < 0 {
		return s.setIdle(ctx, roomId, stored)
	}

	return s.playTrack(ctx, roomId, queue[i], volume, stored)
}

func (s *service) setIdle(ctx context.Context, roomId string, stored domain.Playback) (domain.Playback, error) {
	pb := domain.IdlePlayback(stored.Volume)
	if err := s.writePlayback(ctx, roomId, pb); err != nil {
		return domain.Playback{}, err
	}

	return pb, nil
}

func (s *service) playByKey(ctx context.Context, roomId, key string, volume *int) (domain.Playback, error) {
	stored, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	entry, err := s.roomRepo.GetEntry(ctx, roomId, key)
	if err != nil {
		if errors.Is(err, room.ErrEntryNotFound) {
			return domain.Playback{}, ErrEntryNotFound
		}
		return domain.Playback{}, fmt.Errorf("failed to get entry: %w", err)
	}

	return s.playTrack(ctx, roomId, entry, volume, stored)
}

func (s *service) pause(ctx context.Context, roomId string) (domain.Playback, error) {
	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	if pb.Status != domain.StatusPlaying {
		return pb, nil
	}

	elapsed := pb.Elapsed(s.nowMillis())
	if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      roomId,
		Status:      ptr(domain.StatusPaused),
		CurrentTime: fieldOf(elapsed),
		StartedAt:   clearedField[int64](),
	}); err != nil {
		return domain.Playback{}, err
	}

	pb.Status = domain.StatusPaused
	pb.CurrentTime = &elapsed
	pb.StartedAt = nil

	return pb, nil
}

// resume continues from the paused position. An idle room starts the queue.
func (s *service) resume(ctx context.Context, roomId string, volume *int) (domain.Playback, error) {
	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	switch pb.Status {
	case domain.StatusPlaying:
		return pb, nil
	case domain.StatusIdle:
		return s.advanceToNext(ctx, roomId, volume)
	}

	now := s.nowMillis()
	startedAt := domain.StartedAtFor(now, pb.Elapsed(now))
	if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      roomId,
		Status:      ptr(domain.StatusPlaying),
		StartedAt:   fieldOf(startedAt),
		CurrentTime: clearedField[float64](),
		Interrupted: fieldOf(false),
	}); err != nil {
		return domain.Playback{}, err
	}

	pb.Status = domain.StatusPlaying
	pb.StartedAt = &startedAt
	pb.CurrentTime = nil
	pb.Interrupted = false

	return pb, nil
}

func (s *service) seek(ctx context.Context, roomId string, target float64) (domain.Playback, error) {
	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	target = domain.ClampSeek(target, pb.Duration)

	switch pb.Status {
	case domain.StatusPaused:
		if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
			RoomID:      roomId,
			CurrentTime: fieldOf(target),
			StartedAt:   clearedField[int64](),
		}); err != nil {
			return domain.Playback{}, err
		}
		pb.CurrentTime = &target
		pb.StartedAt = nil
	case domain.StatusPlaying:
		startedAt := domain.StartedAtFor(s.nowMillis(), target)
		if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
			RoomID:      roomId,
			StartedAt:   fieldOf(startedAt),
			CurrentTime: clearedField[float64](),
		}); err != nil {
			return domain.Playback{}, err
		}
		pb.StartedAt = &startedAt
		pb.CurrentTime = nil
	}

	return pb, nil
}

// restart seeks to zero and plays.
func (s *service) restart(ctx context.Context, roomId string) (domain.Playback, error) {
	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return domain.Playback{}, err
	}

	if pb.Status == domain.StatusIdle {
		return pb, nil
	}

	startedAt := s.nowMillis()
	if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      roomId,
		Status:      ptr(domain.StatusPlaying),
		StartedAt:   fieldOf(startedAt),
		CurrentTime: clearedField[float64](),
		Interrupted: fieldOf(false),
	}); err != nil {
		return domain.Playback{}, err
	}

	pb.Status = domain.StatusPlaying
	pb.StartedAt = &startedAt
	pb.CurrentTime = nil
	pb.Interrupted = false

	return pb, nil
}

func (s *service) updatePlayback(ctx context.Context, params *room.UpdatePlaybackParams) error {
	if err := s.roomRepo.UpdatePlayback(ctx, params); err != nil {
		if errors.Is(err, room.ErrPlaybackNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to update playback: %w", err)
	}

	return nil
}

type PlayTrackParams struct {
	RoomID    string
	SessionID string
	Key       string
	Volume    *int
}

func (s *service) PlayTrack(ctx context.Context, params *PlayTrackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.playByKey(ctx, params.RoomID, params.Key, params.Volume)
}

func (s *service) AdvanceToNext(ctx context.Context, params *PlaybackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.advanceToNext(ctx, params.RoomID, params.Volume)
}

func (s *service) AdvanceToPrevious(ctx context.Context, params *PlaybackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.advanceToPrevious(ctx, params.RoomID, params.Volume)
}

func (s *service) Pause(ctx context.Context, params *PlaybackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.pause(ctx, params.RoomID)
}

func (s *service) Resume(ctx context.Context, params *PlaybackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.resume(ctx, params.RoomID, params.Volume)
}

type SeekParams struct {
	RoomID    string
	SessionID string
	Seconds   float64
}

func (s *service) Seek(ctx context.Context, params *SeekParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.seek(ctx, params.RoomID, params.Seconds)
}

func (s *service) Restart(ctx context.Context, params *PlaybackParams) (domain.Playback, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return domain.Playback{}, err
	}

	return s.restart(ctx, params.RoomID)
}

type TrackEndedParams struct {
	RoomID    string
	SessionID string
	// QueueKey is the entry the reporting player believes it was playing.
	QueueKey string
	Volume   *int
}

type TrackEndedResponse struct {
	Advanced bool
	Playback domain.Playback
}

// HandleTrackEnded advances after the leader's player reports the end of a
// track. Nothing happens when the stored record already moved on, and the
// write is a compare-and-set on the stored queue reference.
func (s *service) HandleTrackEnded(ctx context.Context, params *TrackEndedParams) (TrackEndedResponse, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return TrackEndedResponse{}, err
	}

	stored, err := s.getPlayback(ctx, params.RoomID)
	if err != nil {
		return TrackEndedResponse{}, err
	}

	if stored.QueueKey != params.QueueKey {
		s.logger.DebugContext(ctx, "stale track end ignored", "room_id", params.RoomID, "stored", stored.QueueKey, "local", params.QueueKey)
		return TrackEndedResponse{Playback: stored}, nil
	}

	info, err := s.getRoomInfo(ctx, params.RoomID)
	if err != nil {
		return TrackEndedResponse{}, err
	}

	if info.Repeat == domain.RepeatOne && stored.QueueKey != "" {
		entry, err := s.roomRepo.GetEntry(ctx, params.RoomID, stored.QueueKey)
		switch {
		case err == nil:
			return s.advanceIfUnchanged(ctx, params.RoomID, stored, s.buildTrack(entry, params.Volume, stored))
		case errors.Is(err, room.ErrEntryNotFound):
			// replayed entry was removed, fall through to the next one
		default:
			return TrackEndedResponse{}, fmt.Errorf("failed to get entry: %w", err)
		}
	}

	return s.skipIfUnchanged(ctx, params.RoomID, stored, params.Volume)
}

// HandlePlayerError skips a track the leader's player failed to play.
func (s *service) HandlePlayerError(ctx context.Context, params *TrackEndedParams) (TrackEndedResponse, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return TrackEndedResponse{}, err
	}

	stored, err := s.getPlayback(ctx, params.RoomID)
	if err != nil {
		return TrackEndedResponse{}, err
	}

	if stored.QueueKey != params.QueueKey {
		return TrackEndedResponse{Playback: stored}, nil
	}

	return s.skipIfUnchanged(ctx, params.RoomID, stored, params.Volume)
}

func (s *service) skipIfUnchanged(ctx context.Context, roomId string, stored domain.Playback, volume *int) (TrackEndedResponse, error) {
	entry, ok, err := s.nextEntry(ctx, roomId, stored.QueueKey)
	if err != nil {
		return TrackEndedResponse{}, err
	}

	next := domain.IdlePlayback(stored.Volume)
	if ok {
		next = s.buildTrack(entry, volume, stored)
	}

	return s.advanceIfUnchanged(ctx, roomId, stored, next)
}

func (s *service) advanceIfUnchanged(ctx context.Context, roomId string, stored, next domain.Playback) (TrackEndedResponse, error) {
	ok, err := s.roomRepo.SetPlaybackIfQueueKey(ctx, &room.SetPlaybackIfQueueKeyParams{
		RoomID:           roomId,
		ExpectedQueueKey: stored.QueueKey,
		Playback:         next,
	})
	if err != nil {
		return TrackEndedResponse{}, fmt.Errorf("failed to advance playback: %w", err)
	}

	if !ok {
		s.logger.DebugContext(ctx, "advance lost race", "room_id", roomId, "expected", stored.QueueKey)
		return TrackEndedResponse{Playback: stored}, nil
	}

	if next.Status == domain.StatusPlaying {
		s.refreshExpiry(ctx, roomId)
	}

	return TrackEndedResponse{Advanced: true, Playback: next}, nil
}

// RecoverInterruption resumes a record left paused by a leader that dropped
// mid-playback. It reports whether a resume was written.
func (s *service) RecoverInterruption(ctx context.Context, params *PlaybackParams) (bool, error) {
	if err := s.requireLeader(ctx, params.RoomID, params.SessionID); err != nil {
		return false, err
	}

	pb, err := s.getPlayback(ctx, params.RoomID)
	if err != nil {
		return false, err
	}

	if pb.Status != domain.StatusPaused || !pb.Interrupted {
		return false, nil
	}

	if _, err := s.resume(ctx, params.RoomID, params.Volume); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "resumed interrupted playback", "room_id", params.RoomID)

	return true, nil
}

// MarkInterrupted freezes a playing record at its current position after
// every host session vanished.
func (s *service) MarkInterrupted(ctx context.Context, roomId string) (bool, error) {
	pb, err := s.getPlayback(ctx, roomId)
	if err != nil {
		return false, err
	}

	if pb.Status != domain.StatusPlaying {
		return false, nil
	}

	if err := s.updatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      roomId,
		Status:      ptr(domain.StatusPaused),
		CurrentTime: fieldOf(pb.Elapsed(s.nowMillis())),
		Interrupted: fieldOf(true),
		StartedAt:   clearedField[int64](),
	}); err != nil {
		return false, err
	}

	return true, nil
}
