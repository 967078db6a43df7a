package room

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrPlaybackNotFound = errors.New("playback not found")
	ErrEntryNotFound    = errors.New("queue entry not found")
	ErrEntryExists      = errors.New("queue entry already exists")
	ErrQueueFull        = errors.New("queue is full")
	ErrVersionNotFound  = errors.New("version not found")
)
