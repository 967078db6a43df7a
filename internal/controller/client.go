package controller

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/drift"
)

const writeWait = 10 * time.Second

type role string

const (
	roleHost   role = "host"
	roleRemote role = "remote"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// client is the server-side agent state of one websocket connection.
type client struct {
	conn          *websocket.Conn
	role          role
	roomId        string
	connId        string
	userAgent     string
	user          domain.User
	clientVersion string
	// host only
	player    *wsPlayer
	corrector *drift.Corrector

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
	// serializes leadership derivation between the agent and keep-alive
	syncMu sync.Mutex

	mu               sync.Mutex
	sessionId        string
	playback         domain.Playback
	isLeader         bool
	recovered        bool
	hostMissing      bool
	presenceChecking bool
}

func (cl *client) write(out *Output) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()

	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteJSON(out)
}

func (cl *client) ping() error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()

	return cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (cl *client) isHost() bool {
	return cl.role == roleHost
}

// setLeader stores the derived leadership and reports a false to true change.
func (cl *client) setLeader(leader bool) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	became := leader && !cl.isLeader
	cl.isLeader = leader

	return became
}

func (cl *client) leader() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.isLeader
}

// session is the host session id. It changes when an expired session is
// replaced on a live connection.
func (cl *client) session() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.sessionId
}

func (cl *client) setSession(sessionId string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.sessionId = sessionId
}

func (cl *client) recoveryDone() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.recovered
}

// markRecovered records that this connection resumed interrupted playback.
func (cl *client) markRecovered() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.recovered = true
}

func (cl *client) setPlayback(pb domain.Playback) (prev domain.Playback) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	prev = cl.playback
	cl.playback = pb

	return prev
}

func (cl *client) currentPlayback() domain.Playback {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.playback
}

// volume is the level last reported by the host's player.
func (cl *client) volume() *int {
	if cl.player == nil {
		return nil
	}
	return cl.player.Volume()
}
