package controller

import (
	"github.com/sharetube/officedj/pkg/wsrouter"
)

func (c controller) newWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.OnError(c.onWSError)

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	// controls
	wsrouter.Handle(mux, "PLAY_BY_KEY", c.handlePlayByKey)
	wsrouter.Handle(mux, "NEXT", c.handleNext)
	wsrouter.Handle(mux, "PREVIOUS", c.handlePrevious)
	wsrouter.Handle(mux, "PAUSE", c.handlePause)
	wsrouter.Handle(mux, "RESUME", c.handleResume)
	wsrouter.Handle(mux, "RESTART", c.handleRestart)
	wsrouter.Handle(mux, "SEEK", c.handleSeek)

	// queue
	wsrouter.Handle(mux, "ADD_ENTRY", c.handleAddEntry)
	wsrouter.Handle(mux, "REMOVE_ENTRY", c.handleRemoveEntry)
	wsrouter.Handle(mux, "RESTORE_ENTRY", c.handleRestoreEntry)
	wsrouter.Handle(mux, "REORDER_QUEUE", c.handleReorderQueue)

	wsrouter.Handle(mux, "TOGGLE_LIKE", c.handleToggleLike)
	wsrouter.Handle(mux, "UPDATE_SETTINGS", c.handleUpdateSettings)

	return mux
}

func (c controller) getHostWSRouter() *wsrouter.WSRouter {
	mux := c.newWSRouter()

	// player
	wsrouter.Handle(mux, "PLAYER_STATE", c.handlePlayerState)
	wsrouter.Handle(mux, "PLAYER_PROGRESS", c.handlePlayerProgress)

	// seek bar
	wsrouter.Handle(mux, "SCRUB_START", c.handleScrubStart)
	wsrouter.Handle(mux, "SCRUB_MOVE", c.handleScrubMove)
	wsrouter.Handle(mux, "SCRUB_END", c.handleScrubEnd)
	wsrouter.Handle(mux, "VISIBILITY", c.handleVisibility)

	// room
	wsrouter.Handle(mux, "DELETE_ROOM", c.handleDeleteRoom)
	wsrouter.Handle(mux, "LEAVE_ROOM", c.handleLeaveRoom)

	return mux
}

func (c controller) getRemoteWSRouter() *wsrouter.WSRouter {
	return c.newWSRouter()
}
