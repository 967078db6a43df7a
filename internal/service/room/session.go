package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/connection"
	"github.com/sharetube/officedj/internal/repository/room"
)

// Connect registers a websocket connection and returns its id.
func (s *service) Connect(conn *websocket.Conn) (string, error) {
	connId := uuid.NewString()
	if err := s.connRepo.Add(conn, connId); err != nil {
		return "", fmt.Errorf("failed to add connection: %w", err)
	}

	return connId, nil
}

// Disconnect closes the connection and runs every hook armed for it.
func (s *service) Disconnect(ctx context.Context, conn *websocket.Conn) error {
	if err := s.connRepo.RemoveByConn(ctx, conn); err != nil && !errors.Is(err, connection.ErrNotFound) {
		return fmt.Errorf("failed to remove connection: %w", err)
	}

	return nil
}

// DisconnectAll drops every connection. Used on shutdown so that sessions
// are removed instead of waiting for their TTL.
func (s *service) DisconnectAll(ctx context.Context) {
	s.connRepo.RemoveAll(ctx)
}

func (s *service) OnDisconnect(connId string, hook connection.Hook) error {
	return s.connRepo.OnDisconnect(connId, hook)
}

type RegisterSessionParams struct {
	RoomID    string
	UserAgent string
	// ConnID arms removal of the session when that connection drops.
	ConnID string
}

type RegisterSessionResponse struct {
	SessionID   string `json:"session_id"`
	ConnectedAt int64  `json:"connected_at"`
}

// RegisterSession creates a fresh session record. Ids are never reused, so
// every reconnect is a new identity.
func (s *service) RegisterSession(ctx context.Context, params *RegisterSessionParams) (RegisterSessionResponse, error) {
	exists, err := s.roomRepo.IsRoomExists(ctx, params.RoomID)
	if err != nil {
		return RegisterSessionResponse{}, fmt.Errorf("failed to check if room exists: %w", err)
	}

	if !exists {
		return RegisterSessionResponse{}, ErrRoomNotFound
	}

	sessionId := uuid.NewString()
	connectedAt := s.nowMillis()

	if err := s.roomRepo.AddSession(ctx, &room.AddSessionParams{
		RoomID:      params.RoomID,
		SessionID:   sessionId,
		ConnectedAt: connectedAt,
		UserAgent:   params.UserAgent,
		TTL:         s.sessionTTL,
	}); err != nil {
		return RegisterSessionResponse{}, fmt.Errorf("failed to add session: %w", err)
	}

	if params.ConnID != "" {
		roomId := params.RoomID
		if err := s.connRepo.OnDisconnect(params.ConnID, func(ctx context.Context) {
			if err := s.RemoveSession(ctx, roomId, sessionId); err != nil {
				s.logger.WarnContext(ctx, "failed to remove session on disconnect", "room_id", roomId, "session_id", sessionId, "error", err)
			}
		}); err != nil {
			// without the hook the session would linger until its TTL
			_ = s.RemoveSession(ctx, params.RoomID, sessionId)
			return RegisterSessionResponse{}, fmt.Errorf("failed to arm disconnect hook: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "session registered", "room_id", params.RoomID, "session_id", sessionId)

	return RegisterSessionResponse{
		SessionID:   sessionId,
		ConnectedAt: connectedAt,
	}, nil
}

func (s *service) RemoveSession(ctx context.Context, roomId, sessionId string) error {
	if err := s.roomRepo.RemoveSession(ctx, &room.RemoveSessionParams{
		RoomID:    roomId,
		SessionID: sessionId,
	}); err != nil && !errors.Is(err, room.ErrSessionNotFound) {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	return nil
}

// RefreshSession extends the liveness TTL of a session. An expired session
// cannot be revived; the caller registers a new one.
func (s *service) RefreshSession(ctx context.Context, roomId, sessionId string) error {
	if err := s.roomRepo.RefreshSession(ctx, &room.RefreshSessionParams{
		RoomID:    roomId,
		SessionID: sessionId,
		TTL:       s.sessionTTL,
	}); err != nil {
		if errors.Is(err, room.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	return nil
}

// ListSessions returns live sessions ordered by connect time.
func (s *service) ListSessions(ctx context.Context, roomId string) ([]domain.Session, error) {
	sessions, err := s.getSessions(ctx, roomId)
	if err != nil {
		return nil, err
	}

	return domain.SortSessions(sessions), nil
}

func (s *service) IsLeader(ctx context.Context, roomId, sessionId string) (bool, error) {
	return s.isLeader(ctx, roomId, sessionId)
}

// SweepSessions prunes expired sessions of every room so that subscribers
// learn about sessions whose disconnect hook never ran.
func (s *service) SweepSessions(ctx context.Context) error {
	infos, err := s.roomRepo.ListRoomInfos(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}

	for _, info := range infos {
		if _, err := s.roomRepo.GetSessions(ctx, info.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to sweep sessions", "room_id", info.ID, "error", err)
		}
	}

	return nil
}
