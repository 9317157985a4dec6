package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirrorConfig configures RedisMirror.
type RedisMirrorConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // channel prefix, default "pairlink:pairing:"
	Buffer   int    // pending messages before new ones are dropped, default 256
}

type mirrorMessage struct {
	channel string
	payload []byte
}

// RedisMirror republishes status updates on Redis pub/sub so that other
// processes can follow pairing progress. Publish never blocks the caller:
// messages go through a buffered channel drained by one worker, and are
// dropped when the buffer is full.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ch     chan mirrorMessage
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRedisMirror connects to Redis and starts the publish worker.
func NewRedisMirror(ctx context.Context, cfg RedisMirrorConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisMirror(client, cfg), nil
}

func newRedisMirror(client *redis.Client, cfg RedisMirrorConfig) *RedisMirror {
	if cfg.Prefix == "" {
		cfg.Prefix = "pairlink:pairing:"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	m := &RedisMirror{
		client: client,
		prefix: cfg.Prefix,
		ch:     make(chan mirrorMessage, cfg.Buffer),
	}
	m.wg.Add(1)
	go m.loop()
	slog.Info("redis status mirror started", "addr", cfg.Addr, "prefix", cfg.Prefix)
	return m
}

// Channel returns the pub/sub channel used for key.
func (m *RedisMirror) Channel(key string) string {
	return m.prefix + key
}

// Publish queues v (JSON-encoded) for the channel of key.
func (m *RedisMirror) Publish(key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("redis mirror: marshal failed", "key", key, "error", err)
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- mirrorMessage{channel: m.Channel(key), payload: payload}:
	default:
		slog.Warn("redis mirror: buffer full, dropping update", "key", key)
	}
}

func (m *RedisMirror) loop() {
	defer m.wg.Done()
	for msg := range m.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.client.Publish(ctx, msg.channel, msg.payload).Err(); err != nil {
			slog.Warn("redis mirror: publish failed", "channel", msg.channel, "error", err)
		}
		cancel()
	}
}

// Close drains pending messages and closes the Redis client.
func (m *RedisMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()

	m.wg.Wait()
	return m.client.Close()
}
