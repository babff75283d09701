package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"transferscope/internal/metrics"
	"transferscope/internal/model"
)

// SnapshotWindow is the trailing block window delivered to new subscribers.
const SnapshotWindow = 100

// Source is the slice of the chain gateway the broadcaster needs.
type Source interface {
	RecentTransfers(ctx context.Context, window uint64) ([]model.TransferEvent, error)
	SubscribeTransfers(ctx context.Context, out chan<- model.TransferEvent) (func(), error)
}

// Subscriber receives broadcast transfer events. Events is closed when the
// subscriber is removed. A subscriber that falls behind has events dropped
// rather than stalling the fan-out.
type Subscriber struct {
	Events chan model.TransferEvent
}

// Broadcaster fans every observed transfer out to all connected
// subscribers. The upstream chain subscription is reference-counted by
// subscriber count: opened on the 0→1 transition, closed on 1→0. The
// broadcaster owns that lifecycle; no subscriber does.
type Broadcaster struct {
	source Source
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	detach      func()
}

func NewBroadcaster(source Source, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		source:      source,
		logger:      logger,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a subscriber and returns it together with a snapshot
// of recent transfers. The snapshot is fetched independently of the
// ingestion cursor; duplicate delivery across the snapshot/live boundary is
// possible and consumers must tolerate it.
func (b *Broadcaster) Subscribe(ctx context.Context) (*Subscriber, []model.TransferEvent, error) {
	snapshot, err := b.source.RecentTransfers(ctx, SnapshotWindow)
	if err != nil {
		b.logger.Warn("recent transfers snapshot failed", zap.Error(err))
		snapshot = nil
	}

	sub := &Subscriber{Events: make(chan model.TransferEvent, 64)}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[sub] = struct{}{}
	if len(b.subscribers) == 1 {
		if err := b.attach(); err != nil {
			delete(b.subscribers, sub)
			return nil, nil, err
		}
	}
	metrics.FeedSubscribers.Set(float64(len(b.subscribers)))

	return sub, snapshot, nil
}

// Unsubscribe removes a subscriber, closing the upstream subscription when
// the registry empties.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.Events)

	if len(b.subscribers) == 0 && b.detach != nil {
		b.detach()
		b.detach = nil
	}
	metrics.FeedSubscribers.Set(float64(len(b.subscribers)))
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// attach opens the upstream subscription. Caller holds b.mu. The
// subscription outlives any single subscriber's request context, so it is
// anchored to the broadcaster's own context.
func (b *Broadcaster) attach() error {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.TransferEvent, 128)

	unsubscribe, err := b.source.SubscribeTransfers(ctx, events)
	if err != nil {
		cancel()
		return err
	}
	b.detach = func() {
		unsubscribe()
		cancel()
	}

	go b.fanOut(ctx, events)
	return nil
}

func (b *Broadcaster) fanOut(ctx context.Context, events <-chan model.TransferEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			// Sends happen under the same lock that closes subscriber
			// channels, so a send never races a close.
			b.mu.Lock()
			for sub := range b.subscribers {
				select {
				case sub.Events <- event:
				default:
				}
			}
			b.mu.Unlock()
		}
	}
}
