package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/drift"
	"github.com/sharetube/officedj/internal/repository/likes"
	"github.com/sharetube/officedj/internal/repository/room"
	roomservice "github.com/sharetube/officedj/internal/service/room"
	"github.com/sharetube/officedj/pkg/validator"
	"github.com/sharetube/officedj/pkg/wsrouter"
)

type iRoomService interface {
	// identity
	ParseJWT(token string) (domain.User, error)
	IssueGuestToken(name string) (string, domain.User, error)
	// rooms
	CreateRoom(context.Context, *roomservice.CreateRoomParams) (roomservice.CreateRoomResponse, error)
	GetRoom(ctx context.Context, roomId string) (domain.RoomInfo, error)
	ListRooms(context.Context) ([]domain.RoomInfo, error)
	GetRoomState(ctx context.Context, roomId, userId string) (roomservice.RoomState, error)
	UpdateSettings(context.Context, *roomservice.UpdateSettingsParams) (domain.RoomInfo, error)
	DeleteRoom(context.Context, *roomservice.DeleteRoomParams) error
	Subscribe(ctx context.Context, roomId string) (<-chan room.Event, error)
	// connections and sessions
	Connect(conn *websocket.Conn) (string, error)
	Disconnect(ctx context.Context, conn *websocket.Conn) error
	RegisterSession(context.Context, *roomservice.RegisterSessionParams) (roomservice.RegisterSessionResponse, error)
	RemoveSession(ctx context.Context, roomId, sessionId string) error
	RefreshSession(ctx context.Context, roomId, sessionId string) error
	ListSessions(ctx context.Context, roomId string) ([]domain.Session, error)
	IsLeader(ctx context.Context, roomId, sessionId string) (bool, error)
	CheckHostPresence(ctx context.Context, roomId string) (roomservice.HostPresence, error)
	// playback
	Control(context.Context, *roomservice.ControlParams) (roomservice.ControlResponse, error)
	ConsumeCommand(context.Context, *roomservice.ConsumeCommandParams) (roomservice.ConsumeCommandResponse, error)
	HandleTrackEnded(context.Context, *roomservice.TrackEndedParams) (roomservice.TrackEndedResponse, error)
	HandlePlayerError(context.Context, *roomservice.TrackEndedParams) (roomservice.TrackEndedResponse, error)
	AdvanceToNext(context.Context, *roomservice.PlaybackParams) (domain.Playback, error)
	RecoverInterruption(context.Context, *roomservice.PlaybackParams) (bool, error)
	// queue
	AddEntry(context.Context, *roomservice.AddEntryParams) (roomservice.AddEntryResponse, error)
	RemoveEntry(context.Context, *roomservice.RemoveEntryParams) (domain.Entry, error)
	RestoreEntry(context.Context, *roomservice.RestoreEntryParams) (domain.Entry, error)
	ReorderQueue(context.Context, *roomservice.ReorderQueueParams) ([]domain.Entry, error)
	GetQueue(ctx context.Context, roomId string) ([]domain.Entry, error)
	GetLastController(ctx context.Context, roomId string) (*domain.LastController, error)
	// likes and version
	ToggleLike(context.Context, *roomservice.ToggleLikeParams) (likes.Likes, error)
	GetLikes(ctx context.Context, videoId, userId string) (likes.Likes, error)
	TopSongs(context.Context) ([]likes.Song, error)
	GetVersion(context.Context) (string, error)
	CheckVersion(ctx context.Context, clientVersion string) (string, error)
	GetPlayback(ctx context.Context, roomId string) (domain.Playback, error)
	ServerTime() int64
}

type Config struct {
	Drift        drift.Config
	PingInterval time.Duration
}

type controller struct {
	roomService  iRoomService
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	logger       *slog.Logger
	driftCfg     drift.Config
	pingInterval time.Duration
	hostMux      *wsrouter.WSRouter
	remoteMux    *wsrouter.WSRouter
}

func NewController(roomService iRoomService, logger *slog.Logger, cfg *Config) *controller {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}

	driftCfg := cfg.Drift
	if driftCfg.Interval <= 0 {
		driftCfg.Interval = drift.DefaultInterval
	}
	if driftCfg.Threshold <= 0 {
		driftCfg.Threshold = drift.DefaultThreshold
	}

	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService:  roomService,
		validate:     validator.NewValidator(),
		logger:       logger,
		driftCfg:     driftCfg,
		pingInterval: pingInterval,
	}
	c.hostMux = c.getHostWSRouter()
	c.remoteMux = c.getRemoteWSRouter()

	return c
}
