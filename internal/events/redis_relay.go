package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// envelope is the wire format on the Redis channel. Origin identifies the
// instance that published, so it can skip its own echo.
type envelope struct {
	Origin string          `json:"origin"`
	Type   string          `json:"type"`
	Event  json.RawMessage `json:"event"`
}

// redisConn is the subset of *redis.Client used by the relay.
type redisConn interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay extends a local Bus across instances with Redis pub/sub. Publish
// delivers locally first and then forwards; Run delivers events published
// by other instances to the local Bus.
type RedisRelay struct {
	bus     *Bus
	conn    redisConn
	channel string
	origin  string
}

// NewRedisRelay wires bus to the given Redis channel.
func NewRedisRelay(bus *Bus, client *redis.Client, channel string) *RedisRelay {
	return newRelay(bus, client, channel)
}

func newRelay(bus *Bus, conn redisConn, channel string) *RedisRelay {
	return &RedisRelay{bus: bus, conn: conn, channel: channel, origin: uuid.NewString()}
}

// NewRedisClient parses url and verifies the server answers a PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Publish fans ev out locally and forwards it to the other instances. A
// Redis failure is logged; local delivery has already happened.
func (r *RedisRelay) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("component", "events.relay").Msg("encode event")
		return
	}
	r.bus.broadcast(ev.Type, payload)

	msg, err := json.Marshal(envelope{Origin: r.origin, Type: ev.Type, Event: payload})
	if err != nil {
		log.Error().Err(err).Str("component", "events.relay").Msg("encode envelope")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.conn.Publish(ctx, r.channel, msg).Err(); err != nil {
		log.Warn().Err(err).Str("component", "events.relay").Str("channel", r.channel).Msg("redis publish failed")
	}
}

// Run consumes the Redis channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.conn.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	log.Info().Str("component", "events.relay").Str("channel", r.channel).Msg("relay subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			r.deliver(m.Payload)
		}
	}
}

// deliver hands a message from another instance to the local bus.
func (r *RedisRelay) deliver(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Warn().Err(err).Str("component", "events.relay").Msg("drop malformed message")
		return
	}
	if env.Origin == r.origin || len(env.Event) == 0 {
		return
	}
	r.bus.broadcast(env.Type, env.Event)
}
