package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/drift"
	roomservice "github.com/sharetube/officedj/internal/service/room"
	"github.com/sharetube/officedj/pkg/ctxlogger"
	o "github.com/skewb1k/goutils/optional"
)

const clientVersionQueryParam = "client-version"

func (c controller) serveHost(w http.ResponseWriter, r *http.Request) {
	c.serveConn(w, r, roleHost)
}

func (c controller) serveRemote(w http.ResponseWriter, r *http.Request) {
	c.serveConn(w, r, roleRemote)
}

// serveConn runs one websocket connection: it registers the host session,
// sends the initial state and runs the agent next to the read loop.
func (c controller) serveConn(w http.ResponseWriter, r *http.Request, rl role) {
	roomId := strings.ToUpper(chi.URLParam(r, "room-id"))

	// hosts may connect anonymously, participants need an identity
	user, err := c.getUser(r)
	if err != nil {
		if rl == roleRemote || hasToken(r) {
			c.writeError(w, r, err)
			return
		}
		user = domain.User{}
	}

	if _, err := c.roomService.GetRoom(r.Context(), roomId); err != nil {
		c.writeError(w, r, err)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	connId, err := c.roomService.Connect(conn)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to connect", "error", err)
		conn.Close()
		return
	}
	defer func() {
		if err := c.roomService.Disconnect(context.WithoutCancel(r.Context()), conn); err != nil {
			c.logger.WarnContext(r.Context(), "failed to disconnect", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cl := &client{
		conn:          conn,
		role:          rl,
		roomId:        roomId,
		connId:        connId,
		userAgent:     r.UserAgent(),
		user:          user,
		clientVersion: r.URL.Query().Get(clientVersionQueryParam),
	}

	ctx = ctxlogger.AppendCtx(ctx,
		slog.String("room_id", roomId),
		slog.String("role", string(rl)),
		slog.String("conn_id", connId),
	)

	// subscribe before reading state so that no change falls in between
	events, err := c.roomService.Subscribe(ctx, roomId)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe", "error", err)
		return
	}

	joined := map[string]any{"user": user}

	if rl == roleHost {
		sess, err := c.roomService.RegisterSession(ctx, &roomservice.RegisterSessionParams{
			RoomID:    roomId,
			UserAgent: r.UserAgent(),
			ConnID:    connId,
		})
		if err != nil {
			c.logger.WarnContext(ctx, "failed to register session", "error", err)
			return
		}

		cl.setSession(sess.SessionID)
		cl.player = newWSPlayer(cl)
		cl.corrector = drift.New(cl.player, c.logger, &c.driftCfg)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sess.SessionID))
		joined["session_id"] = sess.SessionID
		joined["connected_at"] = sess.ConnectedAt
	}

	ctx = withUser(ctx, user)
	ctx = withClient(ctx, cl)

	state, err := c.roomService.GetRoomState(ctx, roomId, user.ID)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get room state", "error", err)
		return
	}
	joined["room_state"] = state
	cl.setPlayback(state.Playback)

	if err := cl.write(&Output{Type: "JOINED_ROOM", Payload: joined}); err != nil {
		c.logger.WarnContext(ctx, "failed to write json", "error", err)
		return
	}

	if err := c.syncSessions(ctx, cl); err != nil {
		c.logger.WarnContext(ctx, "failed to sync sessions", "error", err)
	}

	if rl == roleHost {
		if err := c.applyPlayback(ctx, cl, state.Playback); err != nil {
			c.logger.WarnContext(ctx, "failed to apply playback", "error", err)
		}
		go cl.corrector.Run(ctx)
	}

	if err := c.checkVersion(ctx, cl); err != nil {
		c.logger.DebugContext(ctx, "failed to check version", "error", err)
	}

	c.armKeepAlive(ctx, cl)
	go c.pingLoop(ctx, cl)

	go func() {
		c.runAgent(ctx, cl, events)
		// unblocks the read loop
		conn.Close()
	}()

	c.logger.InfoContext(ctx, "connection established")

	mux := c.remoteMux
	if rl == roleHost {
		mux = c.hostMux
	}

	if err := mux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "connection closed", "reason", err)
	}
}

type EmptyInput struct{}

func (c controller) validateInput(input any) error {
	if err := c.validate.Err(input); err != nil {
		return fmt.Errorf("%w: %w", roomservice.ErrInvalidCommand, err)
	}

	return nil
}

func (c controller) handleAlive(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	cl := c.getClientFromCtx(ctx)
	if !cl.isHost() {
		return nil
	}

	return c.refreshSession(ctx, cl)
}

func (c controller) control(ctx context.Context, action domain.Action, seekTo *float64, key string) error {
	cl := c.getClientFromCtx(ctx)

	if _, err := c.roomService.Control(ctx, &roomservice.ControlParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		User:      cl.user,
		Action:    action,
		SeekTo:    seekTo,
		Key:       key,
		Volume:    cl.volume(),
	}); err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	return nil
}

type PlayerStateInput struct {
	State       string  `json:"state" validate:"required,oneof=playing paused ended buffering cued error"`
	CurrentTime float64 `json:"current_time" validate:"min=0"`
	Duration    float64 `json:"duration" validate:"min=0"`
	Volume      *int    `json:"volume" validate:"omitempty,min=0,max=100"`
	VideoID     string  `json:"video_id" validate:"omitempty,max=16"`
}

// handlePlayerState records a report of the host's player. The leader turns
// ended and error reports into a state machine transition.
func (c controller) handlePlayerState(ctx context.Context, _ *websocket.Conn, input PlayerStateInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	// a late report about the previous video
	if input.VideoID != "" && input.VideoID != cl.player.VideoID() {
		c.logger.DebugContext(ctx, "ignoring report for another video", "video_id", input.VideoID, "state", input.State)
		return nil
	}

	cl.player.report(input.State, input.CurrentTime, input.Duration, input.Volume)

	if input.State != playerEnded && input.State != playerError {
		return nil
	}

	queueKey := cl.player.QueueKey()
	if !cl.leader() || queueKey == "" {
		return nil
	}

	params := &roomservice.TrackEndedParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		QueueKey:  queueKey,
		Volume:    cl.volume(),
	}

	var err error
	if input.State == playerEnded {
		_, err = c.roomService.HandleTrackEnded(ctx, params)
	} else {
		c.logger.InfoContext(ctx, "player error, skipping track", "queue_key", params.QueueKey)
		_, err = c.roomService.HandlePlayerError(ctx, params)
	}
	if err != nil && !errors.Is(err, roomservice.ErrNotLeader) {
		return fmt.Errorf("failed to advance after %s: %w", input.State, err)
	}

	return nil
}

type PlayerProgressInput struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
	Duration    float64 `json:"duration" validate:"min=0"`
}

func (c controller) handlePlayerProgress(ctx context.Context, _ *websocket.Conn, input PlayerProgressInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	c.getClientFromCtx(ctx).player.report("", input.CurrentTime, input.Duration, nil)

	return nil
}

type PlayByKeyInput struct {
	Key string `json:"key" validate:"required"`
}

func (c controller) handlePlayByKey(ctx context.Context, _ *websocket.Conn, input PlayByKeyInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.control(ctx, domain.ActionPlayByKey, nil, input.Key)
}

func (c controller) handleNext(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.control(ctx, domain.ActionNext, nil, "")
}

func (c controller) handlePrevious(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.control(ctx, domain.ActionPrevious, nil, "")
}

func (c controller) handlePause(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.control(ctx, domain.ActionPause, nil, "")
}

func (c controller) handleResume(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.control(ctx, domain.ActionResume, nil, "")
}

func (c controller) handleRestart(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.control(ctx, domain.ActionRestart, nil, "")
}

type SeekInput struct {
	Seconds *float64 `json:"seconds" validate:"required"`
}

func (c controller) handleSeek(ctx context.Context, _ *websocket.Conn, input SeekInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.control(ctx, domain.ActionSeek, input.Seconds, "")
}

func (c controller) handleScrubStart(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	cl := c.getClientFromCtx(ctx)
	cl.corrector.BeginScrub()

	return cl.write(&Output{Type: "SCRUB_PREVIEW", Payload: map[string]any{
		"transitions": cl.corrector.Transitions(),
	}})
}

type ScrubInput struct {
	Percent float64 `json:"percent" validate:"min=0,max=100"`
}

func (c controller) handleScrubMove(ctx context.Context, _ *websocket.Conn, input ScrubInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	return cl.write(&Output{Type: "SCRUB_PREVIEW", Payload: map[string]any{
		"percent":     input.Percent,
		"seconds":     cl.corrector.MoveScrub(input.Percent),
		"transitions": cl.corrector.Transitions(),
	}})
}

// handleScrubEnd issues the single seek of a scrub gesture.
func (c controller) handleScrubEnd(ctx context.Context, _ *websocket.Conn, input ScrubInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)
	target, ok := cl.corrector.EndScrub(input.Percent)

	if err := cl.write(&Output{Type: "SCRUB_PREVIEW", Payload: map[string]any{
		"percent":     input.Percent,
		"seconds":     target,
		"transitions": cl.corrector.Transitions(),
	}}); err != nil {
		return err
	}

	if !ok || cl.currentPlayback().Status == domain.StatusIdle {
		return nil
	}

	return c.control(ctx, domain.ActionSeek, &target, "")
}

type VisibilityInput struct {
	Hidden bool `json:"hidden"`
}

func (c controller) handleVisibility(ctx context.Context, _ *websocket.Conn, input VisibilityInput) error {
	cl := c.getClientFromCtx(ctx)
	cl.corrector.SetHidden(input.Hidden)

	if input.Hidden {
		return nil
	}

	// catch up right away when the tab comes back
	_, err := cl.corrector.Tick(ctx)
	return err
}

type UpdateSettingsInput struct {
	Private       o.Field[bool]              `json:"private"`
	SharedControl o.Field[bool]              `json:"shared_control"`
	Shuffle       o.Field[bool]              `json:"shuffle"`
	Repeat        o.Field[domain.RepeatMode] `json:"repeat"`
}

func (c controller) handleUpdateSettings(ctx context.Context, _ *websocket.Conn, input UpdateSettingsInput) error {
	cl := c.getClientFromCtx(ctx)

	if _, err := c.roomService.UpdateSettings(ctx, &roomservice.UpdateSettingsParams{
		RoomID:        cl.roomId,
		SessionID:     cl.session(),
		User:          cl.user,
		Private:       input.Private,
		SharedControl: input.SharedControl,
		Shuffle:       input.Shuffle,
		Repeat:        input.Repeat,
	}); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return nil
}

type AddEntryInput struct {
	VideoID   string   `json:"video_id" validate:"required,min=6,max=16"`
	Title     string   `json:"title" validate:"max=200"`
	Artist    string   `json:"artist" validate:"max=200"`
	Thumbnail string   `json:"thumbnail" validate:"omitempty,url"`
	Duration  *float64 `json:"duration" validate:"omitempty,min=0"`
}

func (c controller) handleAddEntry(ctx context.Context, _ *websocket.Conn, input AddEntryInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	resp, err := c.roomService.AddEntry(ctx, &roomservice.AddEntryParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		User:      cl.user,
		VideoID:   input.VideoID,
		Title:     input.Title,
		Artist:    input.Artist,
		Thumbnail: input.Thumbnail,
		Duration:  input.Duration,
		Volume:    cl.volume(),
	})
	if err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	return cl.write(&Output{Type: "ENTRY_ADDED", Payload: map[string]any{"entry": resp.Entry}})
}

type RemoveEntryInput struct {
	Key string `json:"key" validate:"required"`
}

// handleRemoveEntry returns the removed entry to the sender so it can offer undo.
func (c controller) handleRemoveEntry(ctx context.Context, _ *websocket.Conn, input RemoveEntryInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	entry, err := c.roomService.RemoveEntry(ctx, &roomservice.RemoveEntryParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		User:      cl.user,
		Key:       input.Key,
		Volume:    cl.volume(),
	})
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}

	return cl.write(&Output{Type: "ENTRY_REMOVED", Payload: map[string]any{"entry": entry}})
}

type RestoreEntryInput struct {
	Key string `json:"key" validate:"required"`
}

func (c controller) handleRestoreEntry(ctx context.Context, _ *websocket.Conn, input RestoreEntryInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	if _, err := c.roomService.RestoreEntry(ctx, &roomservice.RestoreEntryParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		User:      cl.user,
		Key:       input.Key,
	}); err != nil {
		return fmt.Errorf("failed to restore entry: %w", err)
	}

	return nil
}

type ReorderQueueInput struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

func (c controller) handleReorderQueue(ctx context.Context, _ *websocket.Conn, input ReorderQueueInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	cl := c.getClientFromCtx(ctx)

	if _, err := c.roomService.ReorderQueue(ctx, &roomservice.ReorderQueueParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		User:      cl.user,
		Keys:      input.Keys,
	}); err != nil {
		return fmt.Errorf("failed to reorder queue: %w", err)
	}

	return nil
}

func (c controller) handleToggleLike(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	cl := c.getClientFromCtx(ctx)

	l, err := c.roomService.ToggleLike(ctx, &roomservice.ToggleLikeParams{
		RoomID: cl.roomId,
		User:   cl.user,
	})
	if err != nil {
		return fmt.Errorf("failed to toggle like: %w", err)
	}

	return cl.write(&Output{Type: "LIKES_UPDATED", Payload: map[string]any{
		"video_id": cl.currentPlayback().VideoID,
		"likes":    l,
	}})
}

func (c controller) handleDeleteRoom(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	cl := c.getClientFromCtx(ctx)

	if err := c.roomService.DeleteRoom(ctx, &roomservice.DeleteRoomParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
	}); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

// handleLeaveRoom drops the host's own session and closes the connection.
func (c controller) handleLeaveRoom(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	cl := c.getClientFromCtx(ctx)

	if err := c.roomService.RemoveSession(ctx, cl.roomId, cl.session()); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	cl.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "left"), time.Now().Add(writeWait))
	cl.writeMu.Unlock()

	return conn.Close()
}
