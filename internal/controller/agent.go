package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
	roomservice "github.com/sharetube/officedj/internal/service/room"
)

var errRoomDeleted = errors.New("room deleted")

// pausedSeekTolerance is how far a paused player may sit from the stored
// position before it is moved.
const pausedSeekTolerance = 0.5

// runAgent reacts to room change events until ctx is done or the room is
// deleted. It returns when the connection should be closed.
func (c controller) runAgent(ctx context.Context, cl *client, events <-chan room.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			if err := c.handleEvent(ctx, cl, ev); err != nil {
				if errors.Is(err, errRoomDeleted) {
					return
				}
				c.logger.WarnContext(ctx, "failed to handle room event", "node", ev.Node, "error", err)
			}
		}
	}
}

func (c controller) handleEvent(ctx context.Context, cl *client, ev room.Event) error {
	switch ev.Node {
	case room.NodeSessions:
		return c.syncSessions(ctx, cl)
	case room.NodePlayback:
		return c.syncPlayback(ctx, cl)
	case room.NodeQueue:
		if err := c.syncQueue(ctx, cl); err != nil {
			return err
		}
		if cl.isHost() && cl.leader() {
			return c.startIfIdle(ctx, cl)
		}
		return nil
	case room.NodeInfo:
		info, err := c.roomService.GetRoom(ctx, cl.roomId)
		if err != nil {
			return err
		}
		return cl.write(&Output{Type: "ROOM_UPDATED", Payload: info})
	case room.NodeCommand:
		if cl.isHost() && cl.leader() {
			return c.consumeCommand(ctx, cl)
		}
		return nil
	case room.NodeLastController:
		lc, err := c.roomService.GetLastController(ctx, cl.roomId)
		if err != nil {
			return err
		}
		return cl.write(&Output{Type: "LAST_CONTROLLER_UPDATED", Payload: lc})
	case room.NodeLikes:
		if ev.Value != cl.currentPlayback().VideoID {
			return nil
		}
		return c.syncLikes(ctx, cl, ev.Value)
	case room.NodeVersion:
		return c.checkVersion(ctx, cl)
	case room.NodeDeleted:
		if err := cl.write(&Output{Type: "ROOM_DELETED"}); err != nil {
			c.logger.DebugContext(ctx, "failed to notify room deletion", "error", err)
		}
		return errRoomDeleted
	default:
		return nil
	}
}

func (c controller) syncSessions(ctx context.Context, cl *client) error {
	cl.syncMu.Lock()
	defer cl.syncMu.Unlock()

	sessions, err := c.roomService.ListSessions(ctx, cl.roomId)
	if err != nil {
		return err
	}

	if !cl.isHost() {
		return c.syncHostPresence(ctx, cl, len(sessions))
	}

	leader := domain.IsLeader(sessions, cl.session())
	became := cl.setLeader(leader)

	if err := cl.write(&Output{Type: "SESSIONS_UPDATED", Payload: map[string]any{
		"count":     len(sessions),
		"is_leader": leader,
	}}); err != nil {
		return err
	}

	if became {
		c.logger.InfoContext(ctx, "became leader")
		c.onBecameLeader(ctx, cl)
	}

	return nil
}

// onBecameLeader resumes an interrupted record once per connection, takes
// any command that was waiting for a leader and starts a waiting queue.
func (c controller) onBecameLeader(ctx context.Context, cl *client) {
	if !cl.recoveryDone() {
		recovered, err := c.roomService.RecoverInterruption(ctx, &roomservice.PlaybackParams{
			RoomID:    cl.roomId,
			SessionID: cl.session(),
			Volume:    cl.volume(),
		})
		switch {
		case err != nil && !errors.Is(err, roomservice.ErrNotLeader):
			c.logger.WarnContext(ctx, "failed to recover interrupted playback", "error", err)
		case recovered:
			cl.markRecovered()
		}
	}

	if err := c.consumeCommand(ctx, cl); err != nil {
		c.logger.WarnContext(ctx, "failed to consume command", "error", err)
	}

	if err := c.startIfIdle(ctx, cl); err != nil {
		c.logger.WarnContext(ctx, "failed to start queue", "error", err)
	}
}

func (c controller) consumeCommand(ctx context.Context, cl *client) error {
	resp, err := c.roomService.ConsumeCommand(ctx, &roomservice.ConsumeCommandParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		Volume:    cl.volume(),
	})
	if err != nil {
		if errors.Is(err, roomservice.ErrNotLeader) {
			cl.setLeader(false)
			return nil
		}
		return fmt.Errorf("failed to consume command: %w", err)
	}

	if resp.Command != nil {
		c.logger.DebugContext(ctx, "command executed", "action", resp.Command.Action)
	}

	return nil
}

// syncHostPresence tells participants when every host is gone. The check runs
// in the background because it may wait out a grace period.
func (c controller) syncHostPresence(ctx context.Context, cl *client, count int) error {
	if err := cl.write(&Output{Type: "SESSIONS_UPDATED", Payload: map[string]any{"count": count}}); err != nil {
		return err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count > 0 {
		if cl.hostMissing {
			cl.hostMissing = false
			return cl.write(&Output{Type: "HOST_PRESENT"})
		}
		return nil
	}

	if cl.presenceChecking || cl.hostMissing {
		return nil
	}
	cl.presenceChecking = true

	go c.checkHostPresence(ctx, cl)

	return nil
}

func (c controller) checkHostPresence(ctx context.Context, cl *client) {
	presence, err := c.roomService.CheckHostPresence(ctx, cl.roomId)

	cl.mu.Lock()
	cl.presenceChecking = false
	if presence == roomservice.HostMissing {
		cl.hostMissing = true
	}
	cl.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			c.logger.WarnContext(ctx, "failed to check host presence", "error", err)
		}
		return
	}

	var msgType string
	switch presence {
	case roomservice.HostMissing:
		msgType = "HOST_MISSING"
	case roomservice.HostRoomDeleted:
		msgType = "ROOM_DELETED"
	default:
		return
	}

	if err := cl.write(&Output{Type: msgType}); err != nil {
		c.logger.DebugContext(ctx, "failed to write host presence", "error", err)
	}
}

func (c controller) syncPlayback(ctx context.Context, cl *client) error {
	pb, err := c.roomService.GetPlayback(ctx, cl.roomId)
	if err != nil {
		return err
	}

	prev := cl.setPlayback(pb)

	if err := cl.write(&Output{Type: "PLAYBACK_UPDATED", Payload: map[string]any{
		"playback":    pb,
		"server_time": c.roomService.ServerTime(),
	}}); err != nil {
		return err
	}

	if pb.VideoID != "" && pb.VideoID != prev.VideoID {
		if err := c.syncLikes(ctx, cl, pb.VideoID); err != nil {
			c.logger.DebugContext(ctx, "failed to sync likes", "error", err)
		}
	}

	if cl.isHost() {
		return c.applyPlayback(ctx, cl, pb)
	}

	return nil
}

// applyPlayback drives the host's player towards the stored record.
func (c controller) applyPlayback(ctx context.Context, cl *client, pb domain.Playback) error {
	cl.corrector.SetPlayback(pb)
	p := cl.player
	position := pb.Elapsed(c.roomService.ServerTime())

	switch pb.Status {
	case domain.StatusIdle:
		if p.IsPlaying() {
			if err := p.Pause(); err != nil {
				return err
			}
		}
	case domain.StatusPlaying:
		switch {
		case pb.QueueKey != p.QueueKey() || pb.VideoID != p.VideoID():
			if err := p.Load(pb.VideoID, pb.QueueKey, position, true); err != nil {
				return err
			}
		case !p.IsPlaying():
			if math.Abs(p.CurrentTime()-position) > c.driftCfg.Threshold.Seconds() {
				if err := p.SeekTo(ctx, position); err != nil {
					return err
				}
			}
			if err := p.Play(); err != nil {
				return err
			}
		default:
			if _, err := cl.corrector.Tick(ctx); err != nil {
				return err
			}
		}
	case domain.StatusPaused:
		if pb.QueueKey != p.QueueKey() || pb.VideoID != p.VideoID() {
			if err := p.Load(pb.VideoID, pb.QueueKey, position, false); err != nil {
				return err
			}
			break
		}
		if p.IsPlaying() {
			if err := p.Pause(); err != nil {
				return err
			}
		}
		if math.Abs(p.CurrentTime()-position) > pausedSeekTolerance {
			if err := p.SeekTo(ctx, position); err != nil {
				return err
			}
		}
	}

	if v := p.Volume(); v == nil || *v != pb.Volume {
		return p.SetVolume(pb.Volume)
	}

	return nil
}

// startIfIdle lets the leader pick up entries added while nothing plays.
func (c controller) startIfIdle(ctx context.Context, cl *client) error {
	pb, err := c.roomService.GetPlayback(ctx, cl.roomId)
	if err != nil || pb.Status != domain.StatusIdle {
		return err
	}

	queue, err := c.roomService.GetQueue(ctx, cl.roomId)
	if err != nil || len(queue) == 0 {
		return err
	}

	if _, err := c.roomService.AdvanceToNext(ctx, &roomservice.PlaybackParams{
		RoomID:    cl.roomId,
		SessionID: cl.session(),
		Volume:    cl.volume(),
	}); err != nil && !errors.Is(err, roomservice.ErrNotLeader) {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	return nil
}

func (c controller) syncQueue(ctx context.Context, cl *client) error {
	queue, err := c.roomService.GetQueue(ctx, cl.roomId)
	if err != nil {
		return err
	}

	return cl.write(&Output{Type: "QUEUE_UPDATED", Payload: map[string]any{"queue": queue}})
}

func (c controller) syncLikes(ctx context.Context, cl *client, videoId string) error {
	l, err := c.roomService.GetLikes(ctx, videoId, cl.user.ID)
	if err != nil {
		return err
	}

	return cl.write(&Output{Type: "LIKES_UPDATED", Payload: map[string]any{
		"video_id": videoId,
		"likes":    l,
	}})
}

func (c controller) checkVersion(ctx context.Context, cl *client) error {
	latest, err := c.roomService.CheckVersion(ctx, cl.clientVersion)
	if err != nil || latest == "" {
		return err
	}

	return cl.write(&Output{Type: "UPDATE_AVAILABLE", Payload: map[string]any{"version": latest}})
}

// armKeepAlive must run before the read loop starts. Each pong extends the
// read deadline and, for hosts, the session TTL.
func (c controller) armKeepAlive(ctx context.Context, cl *client) {
	pongWait := c.pingInterval*2 + writeWait
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		if cl.isHost() {
			if err := c.refreshSession(ctx, cl); err != nil {
				c.logger.WarnContext(ctx, "failed to refresh session", "error", err)
			}
		}
		return nil
	})
}

// refreshSession extends the host session. A session that already expired
// while the connection stayed open is replaced by a new one.
func (c controller) refreshSession(ctx context.Context, cl *client) error {
	err := c.roomService.RefreshSession(ctx, cl.roomId, cl.session())
	if !errors.Is(err, roomservice.ErrSessionNotFound) {
		return err
	}

	sess, err := c.roomService.RegisterSession(ctx, &roomservice.RegisterSessionParams{
		RoomID:    cl.roomId,
		UserAgent: cl.userAgent,
		ConnID:    cl.connId,
	})
	if err != nil {
		return fmt.Errorf("failed to renew session: %w", err)
	}

	c.logger.InfoContext(ctx, "session expired, registered a new one", "session_id", sess.SessionID)
	// the new session must win leadership again before acting as leader
	cl.setLeader(false)
	cl.setSession(sess.SessionID)

	if err := cl.write(&Output{Type: "SESSION_RENEWED", Payload: sess}); err != nil {
		return err
	}

	return c.syncSessions(ctx, cl)
}

func (c controller) pingLoop(ctx context.Context, cl *client) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cl.ping(); err != nil {
				c.logger.DebugContext(ctx, "ping failed", "error", err)
				return
			}
		}
	}
}
