package docstore

import (
	"context"
	"sync"
)

// subscriptionBuffer is the per-subscriber queue depth. A notification only
// tells the receiver to pull, so when the queue is full the pending entry
// already covers the dropped one.
const subscriptionBuffer = 8

// Bus fans out change notifications to subscribers of a document id.
type Bus interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, id string) (<-chan Change, func(), error)
}

// LocalBus is an in-process Bus. It serves a single server instance; use
// RedisBus when several instances share a remote store.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan Change]struct{})}
}

// Publish delivers change to every current subscriber of change.ID without
// blocking.
func (b *LocalBus) Publish(_ context.Context, change Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[change.ID] {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for id. The subscription ends when cancel
// is called or ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, id string) (<-chan Change, func(), error) {
	ch := make(chan Change, subscriptionBuffer)

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan Change]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[id], ch)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
			b.mu.Unlock()
			close(ch)
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

var _ Bus = (*LocalBus)(nil)
