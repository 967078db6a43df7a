package room

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/connection"
	"github.com/sharetube/officedj/internal/repository/likes"
	"github.com/sharetube/officedj/internal/repository/room"
	"github.com/sharetube/officedj/pkg/ytvideodata"
	"github.com/skewb1k/goutils/randstr"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotLeader         = errors.New("not the leader")
	ErrRoomNotFound      = errors.New("room not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrRoomNameTaken     = errors.New("room name taken")
	ErrQueueLimitReached = errors.New("queue limit reached")
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrInvalidCommand    = errors.New("invalid command")
)

const (
	roomIDLength  = 6
	roomIDLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type iRoomRepo interface {
	// room
	ReserveRoomID(ctx context.Context, roomId string) (bool, error)
	CreateRoom(context.Context, *room.CreateRoomParams) error
	ResetCommand(ctx context.Context, roomId string) error
	IsRoomExists(ctx context.Context, roomId string) (bool, error)
	GetRoomIDByName(ctx context.Context, name string) (string, error)
	SetRoomName(context.Context, *room.SetRoomNameParams) error
	GetRoomInfo(ctx context.Context, roomId string) (domain.RoomInfo, error)
	ListRoomInfos(context.Context) ([]domain.RoomInfo, error)
	UpdateRoomSettings(context.Context, *room.UpdateRoomSettingsParams) error
	RefreshRoomExpiry(ctx context.Context, roomId string) error
	DeleteRoom(ctx context.Context, roomId string) error
	// session
	AddSession(context.Context, *room.AddSessionParams) error
	RemoveSession(context.Context, *room.RemoveSessionParams) error
	RefreshSession(context.Context, *room.RefreshSessionParams) error
	GetSessions(ctx context.Context, roomId string) ([]domain.Session, error)
	// playback
	SetPlayback(context.Context, *room.SetPlaybackParams) error
	SetPlaybackIfQueueKey(context.Context, *room.SetPlaybackIfQueueKeyParams) (bool, error)
	UpdatePlayback(context.Context, *room.UpdatePlaybackParams) error
	GetPlayback(ctx context.Context, roomId string) (domain.Playback, error)
	// queue
	AddEntry(context.Context, *room.AddEntryParams) error
	GetEntry(ctx context.Context, roomId, key string) (domain.Entry, error)
	GetQueue(ctx context.Context, roomId string) ([]domain.Entry, error)
	GetQueueLength(ctx context.Context, roomId string) (int, error)
	RemoveEntry(context.Context, *room.RemoveEntryParams) error
	GetRemovedEntry(ctx context.Context, roomId, key string) (domain.Entry, error)
	RestoreEntry(context.Context, *room.RestoreEntryParams) error
	UpdateEntry(context.Context, *room.UpdateEntryParams) error
	SetEntryOrders(context.Context, *room.SetEntryOrdersParams) error
	// command
	SetCommand(context.Context, *room.SetCommandParams) error
	TakeCommand(ctx context.Context, roomId string) (*domain.Command, error)
	SetLastController(context.Context, *room.SetLastControllerParams) error
	GetLastController(ctx context.Context, roomId string) (*domain.LastController, error)
	// events
	Subscribe(ctx context.Context, roomId string) (<-chan room.Event, error)
	PublishLikesChanged(ctx context.Context, videoId string) error
	// app settings
	SetVersion(ctx context.Context, version string) error
	GetVersion(ctx context.Context) (string, error)
}

type iLikesRepo interface {
	Toggle(context.Context, *likes.ToggleParams) (likes.Likes, error)
	Get(ctx context.Context, videoId, userId string) (likes.Likes, error)
	Top(ctx context.Context, limit int) ([]likes.Song, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, connID string) error
	OnDisconnect(connID string, hook connection.Hook) error
	RemoveByConn(ctx context.Context, conn *websocket.Conn) error
	RemoveAll(ctx context.Context)
}

type iVideoData interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
	Duration(ctx context.Context, videoId string) (float64, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

// syncGenerator serializes access to a randstr generator, which is not safe
// for concurrent use.
type syncGenerator struct {
	mu sync.Mutex
	g  *randstr.Generator
}

func (g *syncGenerator) GenerateRandomString(length int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.g.GenerateRandomString(length)
}

type Config struct {
	Secret          string
	QueueLimit      int
	SessionTTL      time.Duration
	HostGracePeriod time.Duration
}

type service struct {
	roomRepo        iRoomRepo
	likesRepo       iLikesRepo
	connRepo        iConnRepo
	videoData       iVideoData
	generator       iGenerator
	logger          *slog.Logger
	secret          string
	queueLimit      int
	sessionTTL      time.Duration
	hostGracePeriod time.Duration
	// overridable in tests
	now  func() time.Time
	intn func(n int) int
	// background metadata lookups
	wg sync.WaitGroup
}

func NewService(roomRepo iRoomRepo, likesRepo iLikesRepo, connRepo iConnRepo, videoData iVideoData, logger *slog.Logger, cfg *Config) *service {
	return &service{
		roomRepo:        roomRepo,
		likesRepo:       likesRepo,
		connRepo:        connRepo,
		videoData:       videoData,
		generator:       &syncGenerator{g: randstr.New([]byte(roomIDLetters))},
		logger:          logger,
		secret:          cfg.Secret,
		queueLimit:      cfg.QueueLimit,
		sessionTTL:      cfg.SessionTTL,
		hostGracePeriod: cfg.HostGracePeriod,
		now:             time.Now,
		intn:            rand.Intn,
	}
}

func (s *service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Wait blocks until background metadata lookups finish.
func (s *service) Wait() {
	s.wg.Wait()
}

// ServerTime returns the clock used for every shared timestamp.
func (s *service) ServerTime() int64 {
	return s.nowMillis()
}
