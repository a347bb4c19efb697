package lobby

import (
	"context"
	"sync"
)

// Broadcaster fans update batches out to every registered listener. Each
// listener owns a buffered channel; a slow listener drops batches instead of
// blocking the flush loop or starving other listeners.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan []Update
	nextID uint64
	buffer int
}

// NewBroadcaster creates a broadcaster whose listeners get channels with the
// given buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[uint64]chan []Update),
		buffer: buffer,
	}
}

// Send publishes a batch to all current listeners (non-blocking with drop
// per slow listener).
func (b *Broadcaster) Send(batch []Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- batch:
		default:
			// drop for this listener if it is slow; keep simple
		}
	}
}

// Listen registers a listener and returns its channel plus a cancel function
// to stop listening. The channel is closed once the listener is removed.
func (b *Broadcaster) Listen(ctx context.Context) (<-chan []Update, context.CancelFunc) {
	listenerCtx, cancel := context.WithCancel(ctx)

	ch := make(chan []Update, b.buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-listenerCtx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		// Send only writes while holding the mutex, so after the delete
		// above nothing can write to ch and closing it is safe.
		close(ch)
	}()

	return ch, cancel
}
