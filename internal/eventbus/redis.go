/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/events"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

const redisChannelPrefix = "wavecast:events:"

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// RedisBus relays events through Redis pub/sub. When Redis is unreachable
// or keeps failing it degrades to local-only delivery and probes for
// recovery every CheckInterval.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	relay  *relay
	logger zerolog.Logger
	cfg    RedisConfig

	mu          sync.Mutex
	useFallback bool
	failCount   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBus connects to Redis. A failed initial ping is not an error: the
// bus starts in fallback mode.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	logger = logger.With().Str("component", "eventbus").Str("backend", "redis").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	local := events.NewBus()

	rb := &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		local:  local,
		relay:  &relay{nodeID: nodeID, local: local, logger: logger},
		logger: logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if rb.cfg.MaxFailures <= 0 {
		rb.cfg.MaxFailures = 5
	}
	if rb.cfg.CheckInterval <= 0 {
		rb.cfg.CheckInterval = 30 * time.Second
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer pingCancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
	} else {
		logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")
	}

	channels := make([]string, len(events.All))
	for i, et := range events.All {
		channels[i] = redisChannelPrefix + string(et)
	}
	pubsub := rb.client.Subscribe(ctx, channels...)

	rb.wg.Add(2)
	go rb.receive(pubsub)
	go rb.probe()
	return rb
}

// Subscribe registers a local subscriber; it receives local and peer events.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	return rb.local.Subscribe(eventType)
}

// Unsubscribe removes and closes sub.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally, then to peers unless the breaker is open.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if rb.fallbackActive() {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.relay.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, redisChannelPrefix+string(eventType), data).Err(); err != nil {
		telemetry.EventBusPublishErrors.WithLabelValues("redis").Inc()
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Close stops the receiver and closes the client.
func (rb *RedisBus) Close() error {
	rb.cancel()
	err := rb.client.Close()
	rb.wg.Wait()
	rb.logger.Info().Msg("Redis event bus closed")
	return err
}

func (rb *RedisBus) receive(pubsub *redis.PubSub) {
	defer rb.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rb.relay.handle([]byte(msg.Payload))
		}
	}
}

func (rb *RedisBus) fallbackActive() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.cfg.MaxFailures && !rb.useFallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
	}
}

// probe re-enables Redis once it answers pings again.
func (rb *RedisBus) probe() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if !rb.fallbackActive() {
				continue
			}
			ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
			err := rb.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				rb.logger.Debug().Err(err).Msg("Redis still unavailable")
				continue
			}
			rb.mu.Lock()
			rb.useFallback = false
			rb.failCount = 0
			rb.mu.Unlock()
			rb.logger.Info().Msg("reconnected to Redis, disabling fallback")
		}
	}
}
