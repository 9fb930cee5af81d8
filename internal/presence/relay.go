package presence

import (
	"context"
	"encoding/json"
	"log"

	redis "github.com/redis/go-redis/v9"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

// Sink receives presence snapshots for fan-out to watching clients.
type Sink interface {
	PublishPresence(snapshot models.Presence)
}

// Relay subscribes to the presence events channel and forwards snapshots into
// the sink. Presence flips may originate in another process (the sweep
// worker), so the hop goes through Redis pub/sub rather than in-process
// wiring. Blocks until ctx is cancelled.
func Relay(ctx context.Context, rdb *redis.Client, sink Sink) error {
	sub := rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snapshot models.Presence
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				log.Printf("presence relay: bad payload: %v", err)
				continue
			}
			sink.PublishPresence(snapshot)
		}
	}
}
