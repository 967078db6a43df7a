package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
	o "github.com/skewb1k/goutils/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoomID = "ABC234"

func newTestRepo(t *testing.T) (*repo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRepo(rc, logger, 24*time.Hour), mr
}

func ptr[T any](v T) *T {
	return &v
}

func createTestRoom(t *testing.T, r *repo) {
	t.Helper()

	ok, err := r.ReserveRoomID(context.Background(), testRoomID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.CreateRoom(context.Background(), &room.CreateRoomParams{
		RoomID:      testRoomID,
		Name:        "Office",
		CreatedAt:   1000,
		CreatedBy:   "u1",
		CreatorName: "Ada",
		Playback:    domain.IdlePlayback(domain.DefaultVolume),
	}))
}

func TestCreateAndGetRoom(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	createTestRoom(t, r)

	ok, err := r.ReserveRoomID(ctx, testRoomID)
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := r.GetRoomInfo(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomInfo{
		ID:          testRoomID,
		Name:        "Office",
		CreatedAt:   1000,
		Repeat:      domain.RepeatAll,
		CreatedBy:   "u1",
		CreatorName: "Ada",
	}, info)

	id, err := r.GetRoomIDByName(ctx, "Office")
	require.NoError(t, err)
	assert.Equal(t, testRoomID, id)

	_, err = r.GetRoomIDByName(ctx, "Kitchen")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	pb, err := r.GetPlayback(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, pb.Status)
	assert.Equal(t, domain.DefaultVolume, pb.Volume)
	assert.Nil(t, pb.StartedAt)
}

func TestUpdateRoomSettingsAndList(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	createTestRoom(t, r)

	require.NoError(t, r.UpdateRoomSettings(ctx, &room.UpdateRoomSettingsParams{
		RoomID:        testRoomID,
		SharedControl: ptr(true),
		Repeat:        ptr(domain.RepeatOne),
	}))

	info, err := r.GetRoomInfo(ctx, testRoomID)
	require.NoError(t, err)
	assert.True(t, info.SharedControl)
	assert.Equal(t, domain.RepeatOne, info.Repeat)
	assert.False(t, info.Private)

	infos, err := r.ListRoomInfos(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	err = r.UpdateRoomSettings(ctx, &room.UpdateRoomSettingsParams{RoomID: "NOPE22", Shuffle: ptr(true)})
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestDeleteRoomCascades(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()
	createTestRoom(t, r)

	require.NoError(t, r.AddSession(ctx, &room.AddSessionParams{RoomID: testRoomID, SessionID: "s1", ConnectedAt: 1, TTL: time.Minute}))
	require.NoError(t, r.AddEntry(ctx, &room.AddEntryParams{RoomID: testRoomID, Entry: domain.Entry{Key: "e1", VideoID: "v1", CreatedAt: 5}}))

	require.NoError(t, r.DeleteRoom(ctx, testRoomID))

	exists, err := r.IsRoomExists(ctx, testRoomID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = r.GetRoomIDByName(ctx, "Office")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, testRoomID)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.AddSession(ctx, &room.AddSessionParams{RoomID: testRoomID, SessionID: "late", ConnectedAt: 200, TTL: time.Minute}))
	require.NoError(t, r.AddSession(ctx, &room.AddSessionParams{RoomID: testRoomID, SessionID: "early", ConnectedAt: 100, UserAgent: "firefox", TTL: 10 * time.Second}))

	sessions, err := r.GetSessions(ctx, testRoomID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.Session{ID: "early", ConnectedAt: 100, UserAgent: "firefox"}, sessions[0])

	// early never refreshes and expires
	require.NoError(t, r.RefreshSession(ctx, &room.RefreshSessionParams{RoomID: testRoomID, SessionID: "late", TTL: time.Minute}))
	mr.FastForward(30 * time.Second)

	sessions, err = r.GetSessions(ctx, testRoomID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "late", sessions[0].ID)

	err = r.RefreshSession(ctx, &room.RefreshSessionParams{RoomID: testRoomID, SessionID: "early", TTL: time.Minute})
	assert.ErrorIs(t, err, room.ErrSessionNotFound)

	require.NoError(t, r.RemoveSession(ctx, &room.RemoveSessionParams{RoomID: testRoomID, SessionID: "late"}))
	err = r.RemoveSession(ctx, &room.RemoveSessionParams{RoomID: testRoomID, SessionID: "late"})
	assert.ErrorIs(t, err, room.ErrSessionNotFound)
}

func TestUpdatePlaybackMergesAndClears(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	createTestRoom(t, r)

	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{RoomID: testRoomID, Playback: domain.Playback{
		Status:    domain.StatusPlaying,
		VideoID:   "v1",
		QueueKey:  "e1",
		Volume:    70,
		StartedAt: ptr[int64](5000),
	}}))

	require.NoError(t, r.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      testRoomID,
		Status:      ptr(domain.StatusPaused),
		CurrentTime: o.Field[float64]{Defined: true, Value: ptr(12.5)},
		StartedAt:   o.Field[int64]{Defined: true},
		Interrupted: o.Field[bool]{Defined: true, Value: ptr(true)},
	}))

	pb, err := r.GetPlayback(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, pb.Status)
	assert.Nil(t, pb.StartedAt)
	require.NotNil(t, pb.CurrentTime)
	assert.Equal(t, 12.5, *pb.CurrentTime)
	assert.Equal(t, "v1", pb.VideoID)
	assert.Equal(t, 70, pb.Volume)
	assert.True(t, pb.Interrupted)

	// undefined fields are left alone
	require.NoError(t, r.UpdatePlayback(ctx, &room.UpdatePlaybackParams{RoomID: testRoomID, Title: ptr("Renamed")}))
	pb, err = r.GetPlayback(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", pb.Title)
	require.NotNil(t, pb.CurrentTime)
	assert.True(t, pb.Interrupted)

	err = r.UpdatePlayback(ctx, &room.UpdatePlaybackParams{RoomID: "NOPE22", Status: ptr(domain.StatusPaused)})
	assert.ErrorIs(t, err, room.ErrPlaybackNotFound)
}

func TestSetPlaybackIfQueueKey(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	createTestRoom(t, r)

	require.NoError(t, r.SetPlayback(ctx, &room.SetPlaybackParams{RoomID: testRoomID, Playback: domain.Playback{
		Status:   domain.StatusPlaying,
		QueueKey: "e1",
	}}))

	ok, err := r.SetPlaybackIfQueueKey(ctx, &room.SetPlaybackIfQueueKeyParams{
		RoomID:           testRoomID,
		ExpectedQueueKey: "e0",
		Playback:         domain.Playback{Status: domain.StatusPlaying, QueueKey: "e2"},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.SetPlaybackIfQueueKey(ctx, &room.SetPlaybackIfQueueKeyParams{
		RoomID:           testRoomID,
		ExpectedQueueKey: "e1",
		Playback:         domain.Playback{Status: domain.StatusPlaying, QueueKey: "e2", StartedAt: ptr[int64](42), Interrupted: false},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	pb, err := r.GetPlayback(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, "e2", pb.QueueKey)
	assert.Equal(t, int64(42), *pb.StartedAt)
	assert.False(t, pb.Interrupted)
}

func TestQueue(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, r.AddEntry(ctx, &room.AddEntryParams{RoomID: testRoomID, Entry: domain.Entry{
			Key:       key,
			VideoID:   "vid-" + key,
			CreatedAt: int64(100 + i),
			Order:     ptr(int64(100 + i)),
		}}))
	}

	n, err := r.GetQueueLength(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, r.UpdateEntry(ctx, &room.UpdateEntryParams{RoomID: testRoomID, Key: "b", Duration: ptr(213.0)}))
	e, err := r.GetEntry(ctx, testRoomID, "b")
	require.NoError(t, err)
	assert.Equal(t, 213.0, e.Duration)

	require.NoError(t, r.SetEntryOrders(ctx, &room.SetEntryOrdersParams{RoomID: testRoomID, Orders: map[string]int64{
		"c": 0, "a": 1, "b": 2, "gone": 3,
	}}))

	entries, err := r.GetQueue(ctx, testRoomID)
	require.NoError(t, err)
	sorted := domain.SortEntries(entries)
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{sorted[0].Key, sorted[1].Key, sorted[2].Key})

	require.NoError(t, r.RemoveEntry(ctx, &room.RemoveEntryParams{RoomID: testRoomID, Key: "a"}))
	assert.ErrorIs(t, r.RemoveEntry(ctx, &room.RemoveEntryParams{RoomID: testRoomID, Key: "a"}), room.ErrEntryNotFound)
	assert.ErrorIs(t, r.UpdateEntry(ctx, &room.UpdateEntryParams{RoomID: testRoomID, Key: "a", Duration: ptr(1.0)}), room.ErrEntryNotFound)

	_, err = r.GetEntry(ctx, testRoomID, "a")
	assert.ErrorIs(t, err, room.ErrEntryNotFound)
}

func TestRemoveAndRestoreEntry(t *testing.T) {
	r, mr := newTestRepo(t)
	ctx := context.Background()

	for i, key := range []string{"a", "b"} {
		require.NoError(t, r.AddEntry(ctx, &room.AddEntryParams{RoomID: testRoomID, Entry: domain.Entry{
			Key:         key,
			VideoID:     "vid-" + key,
			RequestedBy: "u1",
			CreatedAt:   int64(100 + i),
		}}))
	}

	require.NoError(t, r.RemoveEntry(ctx, &room.RemoveEntryParams{RoomID: testRoomID, Key: "a", KeepFor: 30 * time.Second}))

	removed, err := r.GetRemovedEntry(ctx, testRoomID, "a")
	require.NoError(t, err)
	assert.Equal(t, "vid-a", removed.VideoID)
	assert.Equal(t, "u1", removed.RequestedBy)

	t.Run("queue full", func(t *testing.T) {
		err := r.RestoreEntry(ctx, &room.RestoreEntryParams{RoomID: testRoomID, Key: "a", Limit: 1})
		assert.ErrorIs(t, err, room.ErrQueueFull)
	})

	t.Run("key taken", func(t *testing.T) {
		require.NoError(t, r.AddEntry(ctx, &room.AddEntryParams{RoomID: testRoomID, Entry: domain.Entry{Key: "a", VideoID: "other", CreatedAt: 500}}))
		err := r.RestoreEntry(ctx, &room.RestoreEntryParams{RoomID: testRoomID, Key: "a"})
		assert.ErrorIs(t, err, room.ErrEntryExists)

		e, err := r.GetEntry(ctx, testRoomID, "a")
		require.NoError(t, err)
		assert.Equal(t, "other", e.VideoID)

		mr.Del(r.getEntryKey(testRoomID, "a"))
		_, err = mr.ZRem(r.getQueueKey(testRoomID), "a")
		require.NoError(t, err)
	})

	require.NoError(t, r.RestoreEntry(ctx, &room.RestoreEntryParams{RoomID: testRoomID, Key: "a", Limit: 5}))
	assert.ErrorIs(t, r.RestoreEntry(ctx, &room.RestoreEntryParams{RoomID: testRoomID, Key: "a", Limit: 5}), room.ErrEntryExists)

	entries, err := r.GetQueue(ctx, testRoomID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = r.GetRemovedEntry(ctx, testRoomID, "a")
	assert.ErrorIs(t, err, room.ErrEntryNotFound)

	t.Run("undo window elapsed", func(t *testing.T) {
		require.NoError(t, r.RemoveEntry(ctx, &room.RemoveEntryParams{RoomID: testRoomID, Key: "b", KeepFor: 30 * time.Second}))
		mr.FastForward(31 * time.Second)

		err := r.RestoreEntry(ctx, &room.RestoreEntryParams{RoomID: testRoomID, Key: "b"})
		assert.ErrorIs(t, err, room.ErrEntryNotFound)
	})
}

func TestTakeCommandIsExactlyOnce(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetCommand(ctx, &room.SetCommandParams{RoomID: testRoomID, Command: domain.Command{
		Action: domain.ActionNext, Timestamp: 1, IssuedBy: "u1",
	}}))
	// last write wins
	require.NoError(t, r.SetCommand(ctx, &room.SetCommandParams{RoomID: testRoomID, Command: domain.Command{
		Action: domain.ActionSeek, SeekTo: ptr(30.0), Timestamp: 2, IssuedBy: "u2",
	}}))

	cmd, err := r.TakeCommand(ctx, testRoomID)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, domain.ActionSeek, cmd.Action)
	assert.Equal(t, 30.0, *cmd.SeekTo)
	assert.Equal(t, "u2", cmd.IssuedBy)

	cmd, err = r.TakeCommand(ctx, testRoomID)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := r.Subscribe(ctx, testRoomID)
	require.NoError(t, err)

	require.NoError(t, r.SetCommand(ctx, &room.SetCommandParams{RoomID: testRoomID, Command: domain.Command{Action: domain.ActionPause}}))
	require.NoError(t, r.PublishLikesChanged(ctx, "vid"))
	require.NoError(t, r.SetVersion(ctx, "1.2.3"))

	want := []room.Event{
		{Node: room.NodeCommand},
		{Node: room.NodeLikes, Value: "vid"},
		{Node: room.NodeVersion, Value: "1.2.3"},
	}
	for _, w := range want {
		select {
		case ev := <-events:
			assert.Equal(t, w, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", w)
		}
	}

	v, err := r.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	cancel()
	for range events {
	}
}

func TestLastController(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	lc, err := r.GetLastController(ctx, testRoomID)
	require.NoError(t, err)
	assert.Nil(t, lc)

	require.NoError(t, r.SetLastController(ctx, &room.SetLastControllerParams{RoomID: testRoomID, LastController: domain.LastController{
		UserID: "u1", Name: "Ada", Action: domain.ActionNext, Timestamp: 9,
	}}))

	lc, err = r.GetLastController(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, &domain.LastController{UserID: "u1", Name: "Ada", Action: domain.ActionNext, Timestamp: 9}, lc)
}
