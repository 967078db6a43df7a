package room

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/domain"
	connrepo "github.com/sharetube/officedj/internal/repository/connection/inmemory"
	likesrepo "github.com/sharetube/officedj/internal/repository/likes/sqlite"
	roomrepo "github.com/sharetube/officedj/internal/repository/room/redis"
	"github.com/sharetube/officedj/pkg/ytvideodata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator = domain.User{ID: "u-creator", Name: "Ada"}
	guest   = domain.User{ID: "u-guest", Name: "Bob"}
)

type fakeVideoData struct {
	mu       sync.Mutex
	duration float64
	data     *ytvideodata.VideoData
	err      error
}

func (f *fakeVideoData) Get(context.Context, string) (*ytvideodata.VideoData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeVideoData) Duration(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.duration, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	s     *service
	mr    *miniredis.Miniredis
	clock *fakeClock
	video *fakeVideoData
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	likes, err := likesrepo.Open(filepath.Join(t.TempDir(), "likes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { likes.Close() })

	video := &fakeVideoData{
		duration: 200,
		data:     &ytvideodata.VideoData{Title: "Resolved", AuthorName: "Channel", ThumbnailUrl: "https://img/1.jpg"},
	}

	s := NewService(roomrepo.NewRepo(rc, logger, time.Hour), likes, connrepo.NewRepo(), video, logger, &Config{
		Secret:     "test-secret",
		QueueLimit: 5,
		SessionTTL: time.Minute,
	})

	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	s.now = clock.Now
	s.intn = rand.New(rand.NewSource(1)).Intn

	return &testEnv{s: s, mr: mr, clock: clock, video: video}
}

func (e *testEnv) createRoom(t *testing.T) string {
	t.Helper()

	resp, err := e.s.CreateRoom(context.Background(), &CreateRoomParams{Name: "Office", User: creator})
	require.NoError(t, err)

	return resp.RoomID
}

func (e *testEnv) register(t *testing.T, roomId string) string {
	t.Helper()

	resp, err := e.s.RegisterSession(context.Background(), &RegisterSessionParams{RoomID: roomId, UserAgent: "test"})
	require.NoError(t, err)
	e.clock.Advance(time.Millisecond)

	return resp.SessionID
}

func (e *testEnv) addEntries(t *testing.T, roomId string, videoIds ...string) []domain.Entry {
	t.Helper()

	entries := make([]domain.Entry, 0, len(videoIds))
	for _, id := range videoIds {
		resp, err := e.s.AddEntry(context.Background(), &AddEntryParams{
			RoomID:    roomId,
			User:      guest,
			VideoID:   id,
			Title:     "Title " + id,
			Artist:    "Artist " + id,
			Thumbnail: "thumb",
			Duration:  ptr(200.0),
		})
		require.NoError(t, err)
		entries = append(entries, resp.Entry)
		e.clock.Advance(time.Millisecond)
	}

	return entries
}

func TestCreateRoom(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	roomId := e.createRoom(t)
	assert.Len(t, roomId, roomIDLength)

	info, err := e.s.GetRoom(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, "Office", info.Name)
	assert.Equal(t, creator.ID, info.CreatedBy)
	assert.Equal(t, domain.RepeatAll, info.Repeat)

	pb, err := e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, domain.IdlePlayback(domain.DefaultVolume), pb)

	t.Run("name taken", func(t *testing.T) {
		resp, err := e.s.CreateRoom(ctx, &CreateRoomParams{Name: "Office", User: guest})
		assert.ErrorIs(t, err, ErrRoomNameTaken)
		assert.Equal(t, roomId, resp.RoomID)
	})

	t.Run("reuse", func(t *testing.T) {
		resp, err := e.s.CreateRoom(ctx, &CreateRoomParams{Name: "Office", User: guest, Reuse: true})
		require.NoError(t, err)
		assert.Equal(t, CreateRoomResponse{RoomID: roomId, Reused: true}, resp)
	})

	t.Run("code lookup", func(t *testing.T) {
		resp, err := e.s.CreateRoom(ctx, &CreateRoomParams{Name: "#" + roomId})
		require.NoError(t, err)
		assert.Equal(t, roomId, resp.RoomID)

		_, err = e.s.CreateRoom(ctx, &CreateRoomParams{Name: "#ZZZZZZ"})
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	_, err = e.s.GetRoom(ctx, "NOPE22")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestListRoomsHidesPrivate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	public := e.createRoom(t)
	e.clock.Advance(time.Second)
	hidden, err := e.s.CreateRoom(ctx, &CreateRoomParams{Name: "Hidden", User: creator})
	require.NoError(t, err)

	sid := e.register(t, hidden.RoomID)
	_, err = e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: hidden.RoomID, SessionID: sid, Private: fieldOf(true)})
	require.NoError(t, err)

	rooms, err := e.s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, public, rooms[0].ID)
}

func TestLeaderElection(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)

	_, err := e.s.RegisterSession(ctx, &RegisterSessionParams{RoomID: "NOPE22"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	first := e.register(t, roomId)
	second := e.register(t, roomId)

	leaders := 0
	for _, sid := range []string{first, second} {
		ok, err := e.s.IsLeader(ctx, roomId, sid)
		require.NoError(t, err)
		if ok {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)

	ok, err := e.s.IsLeader(ctx, roomId, first)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.s.RemoveSession(ctx, roomId, first))

	ok, err = e.s.IsLeader(ctx, roomId, second)
	require.NoError(t, err)
	assert.True(t, ok)

	// a reconnect is a new identity and does not take leadership back
	third := e.register(t, roomId)
	ok, err = e.s.IsLeader(ctx, roomId, third)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpiryTransfersLeadership(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)

	first := e.register(t, roomId)
	e.mr.FastForward(30 * time.Second)
	second := e.register(t, roomId)

	e.mr.FastForward(40 * time.Second)
	require.NoError(t, e.s.RefreshSession(ctx, roomId, second))

	sessions, err := e.s.ListSessions(ctx, roomId)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second, sessions[0].ID)

	ok, err := e.s.IsLeader(ctx, roomId, first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddEntryWhileIdleStartsPlayback(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	resp, err := e.s.AddEntry(ctx, &AddEntryParams{RoomID: roomId, SessionID: leader, User: guest, VideoID: "vid1"})
	require.NoError(t, err)
	assert.True(t, resp.Played)

	e.s.Wait()

	entry, err := e.s.roomRepo.GetEntry(ctx, roomId, resp.Entry.Key)
	require.NoError(t, err)
	assert.Equal(t, 200.0, entry.Duration)
	assert.Equal(t, "Resolved", entry.Title)
	assert.Equal(t, "Channel", entry.Artist)

	pb, err := e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, pb.Status)
	assert.Equal(t, resp.Entry.Key, pb.QueueKey)
	assert.Equal(t, 200.0, pb.Duration)
}

func TestAddEntryFollowerHandsOffToLeader(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	follower := e.register(t, roomId)

	resp, err := e.s.AddEntry(ctx, &AddEntryParams{RoomID: roomId, SessionID: follower, User: guest, VideoID: "vid1", Duration: ptr(90.0)})
	require.NoError(t, err)
	assert.False(t, resp.Played)

	consumed, err := e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	require.NotNil(t, consumed.Command)
	assert.Equal(t, domain.ActionPlayByKey, consumed.Command.Action)
	assert.Equal(t, resp.Entry.Key, consumed.Playback.QueueKey)
	e.s.Wait()
}

func TestAddEntryQueueLimit(t *testing.T) {
	e := newTestEnv(t)
	roomId := e.createRoom(t)
	e.addEntries(t, roomId, "a", "b", "c", "d", "e")

	_, err := e.s.AddEntry(context.Background(), &AddEntryParams{RoomID: roomId, User: guest, VideoID: "f", Duration: ptr(1.0)})
	assert.ErrorIs(t, err, ErrQueueLimitReached)
}

func TestAddEntryLookupFailureKeepsZeroDuration(t *testing.T) {
	e := newTestEnv(t)
	e.video.err = ytvideodata.ErrDurationUnknown
	ctx := context.Background()
	roomId := e.createRoom(t)

	resp, err := e.s.AddEntry(ctx, &AddEntryParams{RoomID: roomId, User: guest, VideoID: "v", Title: "t", Artist: "a", Thumbnail: "th"})
	require.NoError(t, err)
	e.s.Wait()

	entry, err := e.s.roomRepo.GetEntry(ctx, roomId, resp.Entry.Key)
	require.NoError(t, err)
	assert.Zero(t, entry.Duration)
}

func TestNextWrapsAndEmptyQueueGoesIdle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	pb, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, pb.Status)

	entries := e.addEntries(t, roomId, "a", "b", "c")

	var keys []string
	for range 4 {
		pb, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
		require.NoError(t, err)
		keys = append(keys, pb.QueueKey)
	}
	assert.Equal(t, []string{entries[0].Key, entries[1].Key, entries[2].Key, entries[0].Key}, keys)

	pb, err = e.s.AdvanceToPrevious(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.Equal(t, entries[2].Key, pb.QueueKey)

	follower := e.register(t, roomId)
	_, err = e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: follower})
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestShuffleNeverRepeatsCurrent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	e.addEntries(t, roomId, "a", "b", "c")

	_, err := e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, SessionID: leader, Shuffle: fieldOf(true)})
	require.NoError(t, err)

	pb, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	for range 50 {
		next, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
		require.NoError(t, err)
		require.NotEqual(t, pb.QueueKey, next.QueueKey)
		pb = next
	}
}

func TestPauseResumePreservesPosition(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	e.addEntries(t, roomId, "a")

	params := &PlaybackParams{RoomID: roomId, SessionID: leader}
	_, err := e.s.AdvanceToNext(ctx, params)
	require.NoError(t, err)

	e.clock.Advance(30 * time.Second)
	pb, err := e.s.Pause(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, pb.Status)
	require.NotNil(t, pb.CurrentTime)
	assert.InDelta(t, 30, *pb.CurrentTime, 0.001)

	e.clock.Advance(10 * time.Minute)
	pb, err = e.s.Resume(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, pb.Status)

	stored, err := e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Nil(t, stored.CurrentTime)
	assert.InDelta(t, 30, stored.Elapsed(e.s.nowMillis()), 0.001)
}

func TestSeekClampsToDuration(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	e.addEntries(t, roomId, "a")

	_, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	pb, err := e.s.Seek(ctx, &SeekParams{RoomID: roomId, SessionID: leader, Seconds: 500})
	require.NoError(t, err)
	assert.InDelta(t, 199, pb.Elapsed(e.s.nowMillis()), 0.001)

	pb, err = e.s.Seek(ctx, &SeekParams{RoomID: roomId, SessionID: leader, Seconds: -3})
	require.NoError(t, err)
	assert.InDelta(t, 0, pb.Elapsed(e.s.nowMillis()), 0.001)

	e.clock.Advance(5 * time.Second)
	pb, err = e.s.Restart(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.InDelta(t, 0, pb.Elapsed(e.s.nowMillis()), 0.001)
}

func TestCommandConsumedExactlyOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	follower := e.register(t, roomId)
	entries := e.addEntries(t, roomId, "a", "b")

	resp, err := e.s.Control(ctx, &ControlParams{RoomID: roomId, User: creator, Action: domain.ActionPlayByKey, Key: entries[1].Key})
	require.NoError(t, err)
	assert.False(t, resp.Executed)

	_, err = e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: follower})
	assert.ErrorIs(t, err, ErrNotLeader)

	consumed, err := e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	require.NotNil(t, consumed.Command)
	assert.Equal(t, entries[1].Key, consumed.Playback.QueueKey)

	consumed, err = e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.Nil(t, consumed.Command)

	lc, err := e.s.roomRepo.GetLastController(ctx, roomId)
	require.NoError(t, err)
	require.NotNil(t, lc)
	assert.Equal(t, creator.Name, lc.Name)
	assert.Equal(t, domain.ActionPlayByKey, lc.Action)
}

func TestStaleCommandDropped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	entries := e.addEntries(t, roomId, "a", "b")

	_, err := e.s.Control(ctx, &ControlParams{RoomID: roomId, User: creator, Action: domain.ActionPlayByKey, Key: entries[1].Key})
	require.NoError(t, err)

	e.clock.Advance(commandMaxAge + time.Second)

	consumed, err := e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	require.NotNil(t, consumed.Command)

	pb, err := e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, pb.Status)

	// the slot is cleared either way
	consumed, err = e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.Nil(t, consumed.Command)
}

func TestCodeLookupClearsPendingCommand(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	e.addEntries(t, roomId, "a")

	_, err := e.s.Control(ctx, &ControlParams{RoomID: roomId, User: creator, Action: domain.ActionNext})
	require.NoError(t, err)

	resp, err := e.s.CreateRoom(ctx, &CreateRoomParams{Name: "#" + strings.ToLower(roomId), User: creator})
	require.NoError(t, err)
	assert.Equal(t, roomId, resp.RoomID)
	assert.True(t, resp.Reused)

	consumed, err := e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)
	assert.Nil(t, consumed.Command)
}

func TestControlValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)

	tests := []struct {
		name   string
		params ControlParams
	}{
		{"unknown action", ControlParams{Action: "skip"}},
		{"seek without target", ControlParams{Action: domain.ActionSeek}},
		{"play by key without key", ControlParams{Action: domain.ActionPlayByKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.RoomID = roomId
			tt.params.User = creator
			_, err := e.s.Control(ctx, &tt.params)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestPermissionGate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	_, err := e.s.Control(ctx, &ControlParams{RoomID: roomId, User: guest, Action: domain.ActionNext})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, User: guest, SharedControl: fieldOf(true)})
	assert.ErrorIs(t, err, ErrNotLeader)

	info, err := e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, SessionID: leader, SharedControl: fieldOf(true)})
	require.NoError(t, err)
	assert.True(t, info.SharedControl)

	_, err = e.s.Control(ctx, &ControlParams{RoomID: roomId, User: guest, Action: domain.ActionNext})
	assert.NoError(t, err)

	_, err = e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, User: guest, Repeat: fieldOf(domain.RepeatMode("never"))})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestUpdateSettingsFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	tests := []struct {
		name   string
		params UpdateSettingsParams
	}{
		{"nothing to update", UpdateSettingsParams{}},
		{"null flag", UpdateSettingsParams{Shuffle: clearedField[bool]()}},
		{"null repeat", UpdateSettingsParams{Repeat: clearedField[domain.RepeatMode]()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.RoomID = roomId
			tt.params.SessionID = leader
			_, err := e.s.UpdateSettings(ctx, &tt.params)
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}

	info, err := e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, SessionID: leader, Shuffle: fieldOf(true)})
	require.NoError(t, err)
	assert.True(t, info.Shuffle)

	// fields left out keep their value
	info, err = e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, SessionID: leader, Repeat: fieldOf(domain.RepeatOne)})
	require.NoError(t, err)
	assert.True(t, info.Shuffle)
	assert.Equal(t, domain.RepeatOne, info.Repeat)
}

func TestTrackEndedRaceGuard(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	entries := e.addEntries(t, roomId, "a", "b")

	_, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	ended := &TrackEndedParams{RoomID: roomId, SessionID: leader, QueueKey: entries[0].Key}

	resp, err := e.s.HandleTrackEnded(ctx, ended)
	require.NoError(t, err)
	assert.True(t, resp.Advanced)
	assert.Equal(t, entries[1].Key, resp.Playback.QueueKey)

	// a duplicate report for the finished track changes nothing
	resp, err = e.s.HandleTrackEnded(ctx, ended)
	require.NoError(t, err)
	assert.False(t, resp.Advanced)
	assert.Equal(t, entries[1].Key, resp.Playback.QueueKey)
}

func TestTrackEndedRepeatOne(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	entries := e.addEntries(t, roomId, "a", "b")

	_, err := e.s.UpdateSettings(ctx, &UpdateSettingsParams{RoomID: roomId, SessionID: leader, Repeat: fieldOf(domain.RepeatOne)})
	require.NoError(t, err)
	_, err = e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	e.clock.Advance(200 * time.Second)
	resp, err := e.s.HandleTrackEnded(ctx, &TrackEndedParams{RoomID: roomId, SessionID: leader, QueueKey: entries[0].Key})
	require.NoError(t, err)
	assert.True(t, resp.Advanced)
	assert.Equal(t, entries[0].Key, resp.Playback.QueueKey)
	assert.InDelta(t, 0, resp.Playback.Elapsed(e.s.nowMillis()), 0.001)
}

func TestRemovePlayingEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	follower := e.register(t, roomId)
	entries := e.addEntries(t, roomId, "a", "b", "c")

	_, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	t.Run("leader advances directly", func(t *testing.T) {
		removed, err := e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, SessionID: leader, User: creator, Key: entries[0].Key})
		require.NoError(t, err)
		assert.Equal(t, entries[0].Key, removed.Key)

		pb, err := e.s.roomRepo.GetPlayback(ctx, roomId)
		require.NoError(t, err)
		assert.Equal(t, entries[1].Key, pb.QueueKey)
	})

	t.Run("follower names the successor", func(t *testing.T) {
		_, err := e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, SessionID: follower, User: guest, Key: entries[1].Key})
		require.NoError(t, err)

		consumed, err := e.s.ConsumeCommand(ctx, &ConsumeCommandParams{RoomID: roomId, SessionID: leader})
		require.NoError(t, err)
		require.NotNil(t, consumed.Command)
		assert.Equal(t, domain.ActionPlayByKey, consumed.Command.Action)
		assert.Equal(t, entries[2].Key, consumed.Playback.QueueKey)
	})

	t.Run("restore", func(t *testing.T) {
		restored, err := e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: entries[1].Key})
		require.NoError(t, err)
		assert.Equal(t, entries[1].Key, restored.Key)
		assert.Equal(t, entries[1].VideoID, restored.VideoID)

		queue, err := e.s.GetQueue(ctx, roomId)
		require.NoError(t, err)
		require.Len(t, queue, 2)
		assert.Equal(t, entries[1].Key, queue[0].Key)
	})

	_, err = e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, User: domain.User{ID: "stranger"}, Key: entries[2].Key})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, User: creator, Key: "missing"})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRestoreEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	entries := e.addEntries(t, roomId, "a", "b", "c")

	_, err := e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, User: guest, Key: entries[0].Key})
	require.NoError(t, err)

	t.Run("only the requester or a controller", func(t *testing.T) {
		_, err := e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: domain.User{ID: "u-other"}, Key: entries[0].Key})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	restored, err := e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: entries[0].Key})
	require.NoError(t, err)
	assert.Equal(t, entries[0].Title, restored.Title)
	assert.Equal(t, guest.ID, restored.RequestedBy)

	_, err = e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: entries[0].Key})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: "missing"})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	t.Run("queue limit", func(t *testing.T) {
		_, err := e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, User: guest, Key: entries[0].Key})
		require.NoError(t, err)
		e.addEntries(t, roomId, "d", "e", "f")

		_, err = e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: entries[0].Key})
		assert.ErrorIs(t, err, ErrQueueLimitReached)

		queue, err := e.s.GetQueue(ctx, roomId)
		require.NoError(t, err)
		assert.Len(t, queue, 5)
	})

	t.Run("undo window", func(t *testing.T) {
		_, err := e.s.RemoveEntry(ctx, &RemoveEntryParams{RoomID: roomId, User: guest, Key: entries[1].Key})
		require.NoError(t, err)
		e.mr.FastForward(undoWindow + time.Second)

		_, err = e.s.RestoreEntry(ctx, &RestoreEntryParams{RoomID: roomId, User: guest, Key: entries[1].Key})
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})
}

func TestReorderQueue(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	entries := e.addEntries(t, roomId, "a", "b", "c")

	_, err := e.s.ReorderQueue(ctx, &ReorderQueueParams{RoomID: roomId, User: guest, Keys: []string{entries[2].Key}})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	queue, err := e.s.ReorderQueue(ctx, &ReorderQueueParams{
		RoomID: roomId,
		User:   creator,
		Keys:   []string{entries[2].Key, entries[0].Key, entries[1].Key},
	})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []string{entries[2].Key, entries[0].Key, entries[1].Key}, []string{queue[0].Key, queue[1].Key, queue[2].Key})
}

func TestInterruptionMarkAndRecover(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)
	e.addEntries(t, roomId, "a")

	_, err := e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	presence, err := e.s.CheckHostPresence(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, HostPresent, presence)

	e.clock.Advance(42 * time.Second)
	require.NoError(t, e.s.RemoveSession(ctx, roomId, leader))

	presence, err = e.s.CheckHostPresence(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, HostMissing, presence)

	pb, err := e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, pb.Status)
	assert.True(t, pb.Interrupted)
	assert.InDelta(t, 42, pb.Elapsed(e.s.nowMillis()), 0.001)

	e.clock.Advance(time.Minute)
	next := e.register(t, roomId)
	recovered, err := e.s.RecoverInterruption(ctx, &PlaybackParams{RoomID: roomId, SessionID: next})
	require.NoError(t, err)
	assert.True(t, recovered)

	pb, err = e.s.roomRepo.GetPlayback(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaying, pb.Status)
	assert.False(t, pb.Interrupted)
	assert.InDelta(t, 42, pb.Elapsed(e.s.nowMillis()), 0.001)

	recovered, err = e.s.RecoverInterruption(ctx, &PlaybackParams{RoomID: roomId, SessionID: next})
	require.NoError(t, err)
	assert.False(t, recovered)
}

func TestHostPresenceRoomDeleted(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	require.NoError(t, e.s.DeleteRoom(ctx, &DeleteRoomParams{RoomID: roomId, SessionID: leader}))

	presence, err := e.s.CheckHostPresence(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, HostRoomDeleted, presence)
}

func TestToggleLike(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	roomId := e.createRoom(t)
	leader := e.register(t, roomId)

	_, err := e.s.ToggleLike(ctx, &ToggleLikeParams{RoomID: roomId, User: guest})
	assert.ErrorIs(t, err, ErrNothingPlaying)

	e.addEntries(t, roomId, "a")
	_, err = e.s.AdvanceToNext(ctx, &PlaybackParams{RoomID: roomId, SessionID: leader})
	require.NoError(t, err)

	l, err := e.s.ToggleLike(ctx, &ToggleLikeParams{RoomID: roomId, User: guest})
	require.NoError(t, err)
	assert.Equal(t, 1, l.TotalLikes)
	assert.True(t, l.Liked)

	state, err := e.s.GetRoomState(ctx, roomId, guest.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Likes)
	assert.True(t, state.Likes.Liked)
	assert.Equal(t, 1, state.SessionCount)

	songs, err := e.s.TopSongs(ctx)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Title a", songs[0].Title)
}

func TestCheckVersion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	latest, err := e.s.CheckVersion(ctx, "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, latest)

	require.NoError(t, e.s.PublishVersion(ctx, " 1.2.0\n"))

	latest, err = e.s.CheckVersion(ctx, "1.0.9")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", latest)

	latest, err = e.s.CheckVersion(ctx, "1.2.0")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestJWT(t *testing.T) {
	e := newTestEnv(t)

	token, user, err := e.s.IssueGuestToken("Ada")
	require.NoError(t, err)

	parsed, err := e.s.ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, user, parsed)

	other := newTestEnv(t)
	other.s.secret = "another-secret"
	_, err = other.s.ParseJWT(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRoomIDGenerator(t *testing.T) {
	e := newTestEnv(t)

	var wg sync.WaitGroup
	ids := make([]string, 64)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = e.s.generator.GenerateRandomString(roomIDLength)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Len(t, id, roomIDLength)
		for _, c := range id {
			assert.Contains(t, roomIDLetters, string(c))
		}
	}
}
