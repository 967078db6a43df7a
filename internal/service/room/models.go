package room

import (
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/likes"
)

type RoomState struct {
	Info           domain.RoomInfo        `json:"info"`
	Playback       domain.Playback        `json:"playback"`
	Queue          []domain.Entry         `json:"queue"`
	SessionCount   int                    `json:"session_count"`
	LastController *domain.LastController `json:"last_controller"`
	Likes          *likes.Likes           `json:"likes,omitempty"`
	ServerTime     int64                  `json:"server_time"`
}

type HostPresence string

const (
	HostPresent     HostPresence = "present"
	HostMissing     HostPresence = "missing"
	HostRoomDeleted HostPresence = "room_deleted"
)
