package wsrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seekPayload struct {
	Seconds float64 `json:"seconds"`
}

func TestServeConnDispatchesTypedPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		got      []float64
		errs     []error
		seenType []string
		done     = make(chan struct{}, 2)
	)

	r := New()
	r.Use(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
			mu.Lock()
			seenType = append(seenType, GetMessageTypeFromCtx(ctx))
			mu.Unlock()
			return next(ctx, conn, payload)
		}
	})
	Handle(r, "SEEK", func(_ context.Context, _ *websocket.Conn, p seekPayload) error {
		mu.Lock()
		got = append(got, p.Seconds)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	r.OnError(func(_ context.Context, _ *websocket.Conn, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		done <- struct{}{}
	})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = r.ServeConn(req.Context(), conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]any{"type": "SEEK", "payload": map[string]any{"seconds": 42}}))
	require.NoError(t, client.WriteJSON(map[string]any{"type": "NOPE"}))

	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{42}, got)
	assert.Equal(t, []string{"SEEK"}, seenType)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownMessageType)
}
