package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"notifier/internal/config"
	"notifier/internal/logging"
	"notifier/pkg/types"
)

// Backplane carries published broadcasts to every hub instance
type Backplane interface {
	Publish(ctx context.Context, b *types.Broadcast) error
	// Subscribe delivers broadcasts to handler until ctx is cancelled
	Subscribe(ctx context.Context, handler func(*types.Broadcast)) error
	Close() error
}

// LocalBackplane delivers broadcasts within one process
type LocalBackplane struct {
	mu       sync.RWMutex
	handlers map[int]func(*types.Broadcast)
	nextID   int
}

// NewLocalBackplane creates an in-process backplane
func NewLocalBackplane() *LocalBackplane {
	return &LocalBackplane{handlers: make(map[int]func(*types.Broadcast))}
}

func (l *LocalBackplane) Publish(ctx context.Context, b *types.Broadcast) error {
	l.mu.RLock()
	handlers := make([]func(*types.Broadcast), 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(b)
	}
	return nil
}

func (l *LocalBackplane) Subscribe(ctx context.Context, handler func(*types.Broadcast)) error {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers, id)
	})
	return nil
}

func (l *LocalBackplane) Close() error { return nil }

// RedisBackplane shares broadcasts between instances over Redis pub/sub
type RedisBackplane struct {
	client  *redis.Client
	channel string
	logger  *logging.Logger
}

// NewRedisBackplane connects to Redis and verifies the connection
func NewRedisBackplane(cfg config.RedisConfig, logger *logging.Logger) (*RedisBackplane, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisBackplane{
		client:  client,
		channel: cfg.Channel,
		logger:  logging.OrNop(logger).Named("redis-backplane"),
	}, nil
}

func (r *RedisBackplane) Publish(ctx context.Context, b *types.Broadcast) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisBackplane) Subscribe(ctx context.Context, handler func(*types.Broadcast)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// TECHNICAL DISCOVERY: Receive waits for the subscription confirmation so broadcasts
	// published right after Start are not missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe failed: %w", err)
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b, err := decodeBroadcast([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn("dropping undecodable broadcast", logging.Fields{"error": err})
					continue
				}
				handler(b)
			}
		}
	}()
	return nil
}

func (r *RedisBackplane) Close() error {
	return r.client.Close()
}

func decodeBroadcast(data []byte) (*types.Broadcast, error) {
	var b types.Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal broadcast: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
