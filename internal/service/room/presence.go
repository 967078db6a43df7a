package room

import (
	"context"
	"fmt"
	"time"
)

// CheckHostPresence runs after a participant saw the session set go empty.
// It waits out the grace period, re-reads the sessions and tells a deleted
// room apart from a host that vanished. A vanished host leaves the playback
// marked interrupted.
func (s *service) CheckHostPresence(ctx context.Context, roomId string) (HostPresence, error) {
	if s.hostGracePeriod > 0 {
		t := time.NewTimer(s.hostGracePeriod)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	sessions, err := s.getSessions(ctx, roomId)
	if err != nil {
		return "", err
	}

	if len(sessions) > 0 {
		return HostPresent, nil
	}

	exists, err := s.roomRepo.IsRoomExists(ctx, roomId)
	if err != nil {
		return "", fmt.Errorf("failed to check if room exists: %w", err)
	}

	if !exists {
		return HostRoomDeleted, nil
	}

	marked, err := s.MarkInterrupted(ctx, roomId)
	if err != nil {
		return "", err
	}

	if marked {
		s.logger.InfoContext(ctx, "host missing, playback interrupted", "room_id", roomId)
	}

	return HostMissing, nil
}
