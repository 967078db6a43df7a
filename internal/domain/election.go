package domain

import "sort"

// Session is one connected host tab or device.
type Session struct {
	ID          string `json:"id"`
	ConnectedAt int64  `json:"connected_at"`
	UserAgent   string `json:"user_agent"`
}

// SortSessions returns a copy of sessions ordered by connect time.
// Equal timestamps are ordered by id so every reader agrees on the order.
func SortSessions(sessions []Session) []Session {
	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ConnectedAt != sorted[j].ConnectedAt {
			return sorted[i].ConnectedAt < sorted[j].ConnectedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}

// Leader returns the longest-connected live session.
func Leader(sessions []Session) (Session, bool) {
	if len(sessions) == 0 {
		return Session{}, false
	}

	leader := sessions[0]
	for _, s := range sessions[1:] {
		if s.ConnectedAt < leader.ConnectedAt || (s.ConnectedAt == leader.ConnectedAt && s.ID < leader.ID) {
			leader = s
		}
	}

	return leader, true
}

func IsLeader(sessions []Session, selfID string) bool {
	leader, ok := Leader(sessions)
	return ok && leader.ID == selfID
}
