package inmemory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/repository/connection"
)

type repo struct {
	connList map[*websocket.Conn]string
	idList   map[string]*websocket.Conn
	hooks    map[string][]connection.Hook
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		connList: make(map[*websocket.Conn]string),
		idList:   make(map[string]*websocket.Conn),
		hooks:    make(map[string][]connection.Hook),
	}
}

func (r *repo) Add(conn *websocket.Conn, connID string) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "conn_id", connID)
	if r.connList[conn] != "" || r.idList[connID] != nil {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = connID
	r.idList[connID] = conn

	return nil
}

// OnDisconnect arms a hook that runs when the connection is removed.
func (r *repo) OnDisconnect(connID string, hook connection.Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idList[connID] == nil {
		return connection.ErrNotFound
	}

	r.hooks[connID] = append(r.hooks[connID], hook)

	return nil
}

// RemoveByConn closes the connection and runs its hooks in arming order.
func (r *repo) RemoveByConn(ctx context.Context, conn *websocket.Conn) error {
	funcName := "connection.inmemory.RemoveByConn"
	r.mu.Lock()
	connID, ok := r.connList[conn]
	if !ok {
		r.mu.Unlock()
		slog.DebugContext(ctx, funcName, "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	hooks := r.hooks[connID]
	delete(r.connList, conn)
	delete(r.idList, connID)
	delete(r.hooks, connID)
	r.mu.Unlock()

	conn.Close()

	for _, hook := range hooks {
		hook(ctx)
	}

	slog.DebugContext(ctx, funcName, "conn_id", connID, "hooks", len(hooks))
	return nil
}

func (r *repo) RemoveByID(ctx context.Context, connID string) error {
	r.mu.RLock()
	conn, ok := r.idList[connID]
	r.mu.RUnlock()
	if !ok {
		return connection.ErrNotFound
	}

	return r.RemoveByConn(ctx, conn)
}

// RemoveAll drops every connection, used on shutdown.
func (r *repo) RemoveAll(ctx context.Context) {
	r.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(r.connList))
	for conn := range r.connList {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = r.RemoveByConn(ctx, conn)
	}
}

func (r *repo) GetConnID(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.connList[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return connID, nil
}

func (r *repo) GetConn(connID string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[connID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connList)
}
