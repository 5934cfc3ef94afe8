package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBus fans events out over a Redis pub/sub channel so every process
// sharing a session (API server, worker, CLI) raises the same banner or
// sign-out. Local handlers are fed from the subscription, including events
// this process published itself.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	local   *LocalBus
	pubsub  *redis.PubSub
	done    chan struct{}
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(ctx context.Context, rdb *redis.Client, channel string) (*RedisBus, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis events channel cannot be empty")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	b := &RedisBus{
		rdb:     rdb,
		channel: channel,
		local:   NewLocalBus(),
		pubsub:  rdb.Subscribe(ctx, channel),
		done:    make(chan struct{}),
	}
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		b.pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	go b.loop()
	return b, nil
}

func (b *RedisBus) loop() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			log.Warnf("Dropping malformed event on %s: %v", b.channel, err)
			continue
		}
		b.local.dispatch(ev)
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(h Handler) func() {
	return b.local.Subscribe(h)
}

func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.local.Close()
	return err
}

func decodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return ev, nil
}
