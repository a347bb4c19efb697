package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Simlowker/solduel-gaming-platform/game"
)

// DefaultBroadcastInterval is the default interval for flushing buffered updates
const DefaultBroadcastInterval = 2 * time.Second

// Service buffers session updates and broadcasts them to lobby listeners on
// an interval. Multiple changes to the same session within one interval
// collapse into the latest summary, so bursty sessions cannot flood slow
// clients. It is transport-agnostic: the HTTP layer wires routes and
// subscribes via Listen().
type Service struct {
	mu       sync.RWMutex
	buffer   map[uint64]Update
	broad    *Broadcaster
	logger   zerolog.Logger
	interval time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService creates a new lobby service and starts its flush loop.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.BroadcastInterval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	s := &Service{
		buffer:   make(map[uint64]Update),
		broad:    NewBroadcaster(128),
		logger:   cfg.Logger.With().Str("component", "lobby").Logger(),
		interval: interval,
		stopChan: make(chan struct{}),
	}
	s.start()
	return s
}

// Publish buffers one session update; the flush loop delivers it. Safe to
// call from the registry's onChange hook.
func (s *Service) Publish(session *game.Session) {
	update := NewUpdate(session)
	s.mu.Lock()
	s.buffer[update.SessionID] = update
	s.mu.Unlock()
}

// Listen subscribes to flushed update batches until ctx is done or the
// returned cancel is called.
func (s *Service) Listen(ctx context.Context) (<-chan []Update, context.CancelFunc) {
	return s.broad.Listen(ctx)
}

// Pending returns the not-yet-flushed updates. Used by the lobby handler to
// prime a new listener with current state.
func (s *Service) Pending() []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.buffer)
}

func (s *Service) start() {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-s.stopChan:
				s.ticker.Stop()
				return
			case <-s.ticker.C:
				s.flush()
			}
		}
	}()
}

// flush drains the buffer and broadcasts one batch.
func (s *Service) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := lo.Values(s.buffer)
	s.buffer = make(map[uint64]Update)
	s.mu.Unlock()

	s.broad.Send(batch)
	s.logger.Debug().Int("updates", len(batch)).Msg("lobby batch broadcast")
}

// Stop halts the flush loop. Buffered updates are flushed once on the way
// out.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.flush()
	})
}
