package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Bridge fans events out across server instances through a Redis channel.
// Broadcast publishes; Run feeds everything arriving on the channel,
// including this instance's own events, into the local hub.
type Bridge struct {
	hub     *Hub
	rc      *redis.Client
	channel string
	logger  *log.Logger
}

// NewBridge wires a hub to a Redis pub/sub channel.
func NewBridge(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bridge{hub: hub, rc: rc, channel: channel, logger: logger}
}

// Broadcast publishes the event for every instance's subscriber loop. When
// Redis is unreachable the event still reaches this instance's own
// connections; the mutation that triggered it never sees an error.
func (b *Bridge) Broadcast(ev Event) {
	data, err := ev.Marshal()
	if err != nil {
		b.logger.WithError(err).Error("marshal event")
		return
	}
	if err := b.rc.Publish(context.Background(), b.channel, data).Err(); err != nil {
		b.logger.WithError(err).Error("publish update, delivering locally only")
		b.hub.BroadcastRaw(data)
	}
}

// Run subscribes to the update channel and forwards payloads to the local hub
// until ctx is cancelled, resubscribing when the pub/sub connection drops.
func (b *Bridge) Run(ctx context.Context) {
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				b.hub.BroadcastRaw([]byte(msg.Payload))
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
