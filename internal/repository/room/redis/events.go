package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharetube/officedj/internal/repository/room"
)

const (
	songsChannel       = "songs:events"
	appSettingsChannel = "app-settings:events"
	versionKey         = "app-settings:version"
)

// Subscribe delivers change events of a room plus the global likes and version
// events. The channel is closed when ctx is done.
func (r repo) Subscribe(ctx context.Context, roomId string) (<-chan room.Event, error) {
	ps := r.rc.Subscribe(ctx, r.getEventsChannel(roomId), songsChannel, appSettingsChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan room.Event, 32)
	go func() {
		defer close(events)
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event room.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.WarnContext(ctx, "failed to decode event", "channel", msg.Channel, "error", err)
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func (r repo) PublishLikesChanged(ctx context.Context, videoId string) error {
	if err := r.rc.Publish(ctx, songsChannel, r.encodeEvent(room.NodeLikes, videoId)).Err(); err != nil {
		return fmt.Errorf("failed to publish likes event: %w", err)
	}

	return nil
}
