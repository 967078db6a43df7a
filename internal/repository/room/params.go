package room

import (
	"time"

	"github.com/sharetube/officedj/internal/domain"
	o "github.com/skewb1k/goutils/optional"
)

type CreateRoomParams struct {
	RoomID      string
	Name        string
	CreatedAt   int64
	CreatedBy   string
	CreatorName string
	Playback    domain.Playback
}

type SetRoomNameParams struct {
	RoomID string
	Name   string
}

type UpdateRoomSettingsParams struct {
	RoomID        string
	Private       *bool
	SharedControl *bool
	Shuffle       *bool
	Repeat        *domain.RepeatMode
}

type AddSessionParams struct {
	RoomID      string
	SessionID   string
	ConnectedAt int64
	UserAgent   string
	TTL         time.Duration
}

type RemoveSessionParams struct {
	RoomID    string
	SessionID string
}

type RefreshSessionParams struct {
	RoomID    string
	SessionID string
	TTL       time.Duration
}

type SetPlaybackParams struct {
	RoomID   string
	Playback domain.Playback
}

// UpdatePlaybackParams merges the set fields into the playback record. An
// optional field that is defined without a value is removed.
type UpdatePlaybackParams struct {
	RoomID      string
	Status      *domain.Status
	Duration    *float64
	Title       *string
	Artist      *string
	Thumbnail   *string
	StartedAt   o.Field[int64]
	CurrentTime o.Field[float64]
	Interrupted o.Field[bool]
}

type SetPlaybackIfQueueKeyParams struct {
	RoomID           string
	ExpectedQueueKey string
	Playback         domain.Playback
}

type AddEntryParams struct {
	RoomID string
	Entry  domain.Entry
}

// RemoveEntryParams removes an entry from the queue. The entry data is kept
// for KeepFor so that RestoreEntry can put it back.
type RemoveEntryParams struct {
	RoomID  string
	Key     string
	KeepFor time.Duration
}

type RestoreEntryParams struct {
	RoomID string
	Key    string
	Limit  int
}

type UpdateEntryParams struct {
	RoomID    string
	Key       string
	Duration  *float64
	Title     *string
	Artist    *string
	Thumbnail *string
}

type SetEntryOrdersParams struct {
	RoomID string
	Orders map[string]int64
}

type SetCommandParams struct {
	RoomID  string
	Command domain.Command
}

type SetLastControllerParams struct {
	RoomID         string
	LastController domain.LastController
}
