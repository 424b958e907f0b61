package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yourusername/buildle-api/internal/metrics"
)

const defaultBufferSize = 64

type subscriber struct {
	ch chan Change
}

// LocalBus - шина в памяти процесса для одного инстанса.
// Переполненный буфер подписчика вытесняет самое старое событие:
// последнее событие важнее, так как подписчик все равно перечитывает агрегат.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	bufSize int
	closed  bool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLocalBus создает шину в памяти
func NewLocalBus(bufSize int, m *metrics.Metrics, logger zerolog.Logger) *LocalBus {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &LocalBus{
		subs:    make(map[string]map[*subscriber]struct{}),
		bufSize: bufSize,
		metrics: m,
		logger:  logger.With().Str("component", "local_bus").Logger(),
	}
}

// Publish рассылает событие подписчикам челленджа без блокировки
func (b *LocalBus) Publish(_ context.Context, change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[change.ChallengeID] {
		b.deliver(sub, change)
	}
	b.metrics.FeedPublished(string(change.Kind))
	return nil
}

func (b *LocalBus) deliver(sub *subscriber, change Change) {
	for {
		select {
		case sub.ch <- change:
			return
		default:
		}
		select {
		case <-sub.ch:
			b.metrics.FeedDropped()
			b.logger.Debug().Str("challenge_id", change.ChallengeID).Msg("subscriber buffer full, oldest change evicted")
		default:
		}
	}
}

// Subscribe регистрирует подписчика до отмены ctx
func (b *LocalBus) Subscribe(ctx context.Context, challengeID string) (<-chan Change, error) {
	sub := &subscriber{ch: make(chan Change, b.bufSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[challengeID] == nil {
		b.subs[challengeID] = make(map[*subscriber]struct{})
	}
	b.subs[challengeID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(challengeID, sub)
	}()
	return sub.ch, nil
}

func (b *LocalBus) unsubscribe(challengeID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.subs[challengeID]
	if !ok {
		return
	}
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(b.subs, challengeID)
	}
	close(sub.ch)
}

// SubscriberCount возвращает число подписчиков челленджа
func (b *LocalBus) SubscriberCount(challengeID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[challengeID])
}

// Close закрывает все подписки
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, room := range b.subs {
		for sub := range room {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
	return nil
}
