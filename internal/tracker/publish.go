package tracker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Publisher relays status events to out-of-process observers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, eris.New("tracker: redis addr is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "profile-stages"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "tracker: redis ping")
	}

	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// Channel returns the pub/sub channel events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	raw, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return eris.Wrap(p.rdb.Publish(ctx, p.channel, raw).Err(), "tracker: redis publish")
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

func encodeEvent(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: marshal event")
	}
	return raw, nil
}

// Forward subscribes to the tracker and relays every event to pub until ctx
// is done. Publish failures are logged and skipped.
func Forward(ctx context.Context, t *Tracker, pub Publisher, buffer int) {
	events, cancel := t.Subscribe(buffer)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := pub.Publish(ctx, ev); err != nil {
					zap.L().Warn("tracker: publish event failed",
						zap.String("entity", ev.Key.String()),
						zap.String("stage", string(ev.Stage)),
						zap.Error(err),
					)
				}
			}
		}
	}()
}
