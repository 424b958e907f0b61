package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/metrics"
)

// RedisBus реализует Bus поверх Redis Pub/Sub: один канал на челлендж
// (<prefix><challengeID>), события сериализуются в JSON.
// Нужен, когда за балансировщиком несколько инстансов.
type RedisBus struct {
	client  redis.UniversalClient
	prefix  string
	bufSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRedisBus создает шину на существующем клиенте Redis. Клиент шина не закрывает.
func NewRedisBus(client redis.UniversalClient, prefix string, bufSize int, m *metrics.Metrics, logger zerolog.Logger) (*RedisBus, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisBus")
	}
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client:  client,
		prefix:  prefix,
		bufSize: bufSize,
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		logger:  logger.With().Str("component", "redis_bus").Logger(),
	}, nil
}

// Channel возвращает имя канала Redis для челленджа
func (b *RedisBus) Channel(challengeID string) string {
	return b.prefix + challengeID
}

// Publish публикует событие в канал челленджа
func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return ErrClosed
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	channel := b.Channel(change.ChallengeID)
	receivers, err := b.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	b.metrics.FeedPublished(string(change.Kind))
	b.logger.Debug().Str("channel", channel).Str("kind", string(change.Kind)).Int64("receivers", receivers).Msg("change published")
	return nil
}

// Subscribe подписывается на канал челленджа и ждет подтверждения от Redis
func (b *RedisBus) Subscribe(ctx context.Context, challengeID string) (<-chan Change, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	channel := b.Channel(challengeID)
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = pubsub.Close()
		return nil, ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	out := make(chan Change, b.bufSize)
	go b.forward(ctx, channel, pubsub, out)
	return out, nil
}

func (b *RedisBus) forward(ctx context.Context, channel string, pubsub *redis.PubSub, out chan Change) {
	defer func() {
		_ = pubsub.Close()
		close(out)
		b.wg.Done()
	}()

	redisCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-redisCh:
			if !ok {
				b.logger.Warn().Str("channel", channel).Msg("redis channel closed")
				return
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Error().Err(err).Str("channel", channel).Msg("failed to decode change")
				continue
			}
			if err := change.Validate(); err != nil {
				b.logger.Error().Err(err).Str("channel", channel).Msg("invalid change")
				continue
			}
			b.offer(out, change)
		case <-ctx.Done():
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// offer кладет событие в буфер, при переполнении вытесняя самое старое
func (b *RedisBus) offer(out chan Change, change Change) {
	for {
		select {
		case out <- change:
			return
		default:
		}
		select {
		case <-out:
			b.metrics.FeedDropped()
		default:
		}
	}
}

// Close останавливает все подписки и ждет завершения горутин
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}
