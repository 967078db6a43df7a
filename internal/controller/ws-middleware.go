package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/officedj/pkg/ctxlogger"
	"github.com/sharetube/officedj/pkg/wsrouter"
)

func (c controller) wsRequestIdWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
		return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
		return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received", "payload", string(payload))

			start := time.Now()

			err := next(ctx, conn, payload)

			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
			)

			return err
		}
	}
}

// onWSError reports a failed message to the sender as an ERROR message.
func (c controller) onWSError(ctx context.Context, _ *websocket.Conn, err error) {
	cl := c.getClientFromCtx(ctx)
	if cl == nil {
		return
	}

	c.logger.InfoContext(ctx, "websocket message failed", "error", err)

	message := err.Error()
	if statusFromError(err) == http.StatusInternalServerError {
		message = "internal error"
	}

	if err := cl.write(&Output{Type: "ERROR", Payload: map[string]any{"message": message}}); err != nil {
		c.logger.DebugContext(ctx, "failed to write error", "error", err)
	}
}
