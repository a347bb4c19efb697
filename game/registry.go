package game

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

// Rules carries the tunable limits the registry and engines enforce.
type Rules struct {
	MinStake        decimal.Decimal
	MaxStake        decimal.Decimal
	MinLotteryStake decimal.Decimal
	RaiseCeiling    decimal.Decimal
	MaxRounds       int
	Timeout         time.Duration
}

// ChangeFunc is notified after every successful mutation with a snapshot of
// the session and, when the session reached a terminal state, the outcome.
type ChangeFunc func(s *Session, outcome *Outcome)

// entry pairs a per-session mutation lock with a lock-free read snapshot.
// Writers clone the snapshot, mutate the clone and swap it in; readers never
// block on in-flight mutations.
type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[Session]
}

// Registry owns the live session set. All mutations of a given session are
// serialized; concurrent mutations of the same session fail fast with
// ErrSessionBusy instead of queueing.
type Registry struct {
	rules Rules

	commitReveal *CommitRevealEngine
	betting      *BettingRoundEngine
	lottery      *LotteryDrawEngine

	mu      sync.RWMutex
	entries map[uint64]*entry

	nextID   atomic.Uint64
	onChange ChangeFunc
	clock    func() time.Time
}

func NewRegistry(rules Rules, rng Source) *Registry {
	return &Registry{
		rules:        rules,
		commitReveal: NewCommitRevealEngine(rng),
		betting:      NewBettingRoundEngine(rng, rules.RaiseCeiling),
		lottery:      NewLotteryDrawEngine(rng, rules.MinLotteryStake),
		entries:      make(map[uint64]*entry),
		clock:        time.Now,
	}
}

// SetOnChange registers the post-mutation notification hook. Must be called
// before the registry starts taking traffic.
func (r *Registry) SetOnChange(fn ChangeFunc) { r.onChange = fn }

// SetClock overrides the time source. Test hook.
func (r *Registry) SetClock(clock func() time.Time) { r.clock = clock }

// CreateSession opens a new session with the creator's stake already in the
// pot. Duels start in Waiting until an opponent joins; lotteries start in
// Waiting until a second participant enters.
func (r *Registry) CreateSession(kind Kind, creator string, stake decimal.Decimal) (*Session, error) {
	if !kind.Valid() {
		return nil, errors.New(errors.ErrStateError, "unknown session kind")
	}
	if creator == "" {
		return nil, errors.New(errors.ErrInvalidRequest, "creator identity is required")
	}
	minStake := r.rules.MinStake
	if kind == KindLottery {
		minStake = r.rules.MinLotteryStake
	}
	if stake.LessThan(minStake) {
		return nil, errors.New(errors.ErrStakeTooSmall, "stake is below the minimum")
	}
	if stake.GreaterThan(r.rules.MaxStake) {
		return nil, errors.New(errors.ErrInvalidStake, "stake exceeds the maximum")
	}

	now := r.clock()
	s := &Session{
		ID:      r.nextID.Add(1),
		Kind:    kind,
		State:   StateWaiting,
		Creator: creator,
		Players: []*Player{{
			Identity:     creator,
			InitialStake: stake,
			Contribution: stake,
		}},
		Pot:       stake,
		CreatedAt: now,
		ExpiresAt: now.Add(r.rules.Timeout),
		MaxRounds: r.rules.MaxRounds,
	}

	ent := &entry{}
	ent.snap.Store(s.Clone())

	r.mu.Lock()
	r.entries[s.ID] = ent
	r.mu.Unlock()

	r.notify(s, nil)
	return s.Clone(), nil
}

// JoinSession seats an opponent in a waiting duel. Duel stakes must match the
// creator's exactly; a full complement of players activates the session.
// Lottery participants go through the Enter action instead.
func (r *Registry) JoinSession(id uint64, playerID string, stake decimal.Decimal) (*Session, error) {
	return r.mutate(id, func(s *Session) (*Outcome, error) {
		if s.Kind == KindLottery {
			return nil, errors.New(errors.ErrStateError, "lotteries are joined via an enter action")
		}
		if s.State != StateWaiting {
			return nil, errors.New(errors.ErrSessionNotJoinable, "session is not accepting players")
		}
		if _, ok := s.PlayerByIdentity(playerID); ok {
			return nil, errors.New(errors.ErrAlreadyJoined, "player already joined this session")
		}
		if len(s.Players) >= s.Kind.MaxPlayers() {
			return nil, errors.New(errors.ErrSessionFull, "session is full")
		}
		if !stake.Equal(s.Players[0].InitialStake) {
			return nil, errors.New(errors.ErrStakeMismatch, "stake must match the creator's stake")
		}

		s.Players = append(s.Players, &Player{
			Identity:     playerID,
			InitialStake: stake,
			Contribution: stake,
		})
		s.Pot = s.Pot.Add(stake)

		if len(s.Players) == s.Kind.RequiredPlayers() {
			s.advance(StateActive)
			s.ExpiresAt = r.clock().Add(r.rules.Timeout)
		}
		return nil, nil
	})
}

// CancelSession lets the creator withdraw a session nobody else has joined.
// The creator's stake is refunded in full, fee-free.
func (r *Registry) CancelSession(id uint64, playerID string) (*Session, error) {
	return r.mutate(id, func(s *Session) (*Outcome, error) {
		if s.State != StateWaiting {
			return nil, errors.New(errors.ErrStateError, "only waiting sessions can be cancelled")
		}
		if playerID != s.Creator {
			return nil, errors.New(errors.ErrNotParticipant, "only the creator can cancel")
		}
		if len(s.Players) > 1 {
			return nil, errors.New(errors.ErrStateError, "session already has an opponent")
		}
		s.advance(StateCancelled)
		s.CancelReason = CancelCreatorCancelled
		return &Outcome{Kind: SettlementRefund}, nil
	})
}

// Dispatch routes a gameplay action to the engine matching the session kind.
func (r *Registry) Dispatch(id uint64, playerID string, action Action) (*Session, error) {
	return r.mutate(id, func(s *Session) (*Outcome, error) {
		switch action.Kind {
		case ActionCommit:
			return nil, r.commitReveal.Commit(s, playerID, action.CommitHash)
		case ActionReveal:
			return r.commitReveal.Reveal(s, playerID, action.Move, action.Nonce)
		case ActionCheck, ActionCall, ActionRaise, ActionFold:
			return r.betting.Apply(s, playerID, BettingAction{Kind: action.Kind, Amount: action.Amount})
		case ActionEnter:
			return nil, r.lottery.Enter(s, playerID, action.Amount)
		case ActionDraw:
			return r.lottery.Draw(s)
		default:
			return nil, errors.New(errors.ErrUnknownAction, "unknown action kind")
		}
	})
}

// ExpireStale sweeps every session whose deadline has passed and resolves it
// per its kind: unfilled sessions are cancelled and refunded, in-flight duels
// resolve against the stalled player, active lotteries draw.
func (r *Registry) ExpireStale(now time.Time) []*Session {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.entries))
	for id, ent := range r.entries {
		if s := ent.snap.Load(); s != nil && !s.State.Terminal() && now.After(s.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	expired := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.mutate(id, func(s *Session) (*Outcome, error) {
			if s.State.Terminal() || !now.After(s.ExpiresAt) {
				return nil, errors.New(errors.ErrStateError, "session no longer stale")
			}
			if s.State == StateWaiting {
				s.advance(StateCancelled)
				s.CancelReason = CancelTimeout
				return &Outcome{Kind: SettlementRefund}, nil
			}
			switch s.Kind {
			case KindSimpleDuel:
				return r.commitReveal.ResolveTimeout(s)
			case KindStrategicDuel:
				return r.betting.ResolveTimeout(s)
			case KindLottery:
				return r.lottery.ResolveTimeout(s)
			}
			return nil, errors.New(errors.ErrStateError, "unknown session kind")
		})
		if err != nil {
			continue
		}
		expired = append(expired, s)
	}
	return expired
}

// GetSession returns a point-in-time snapshot. It never blocks on writers.
func (r *Registry) GetSession(id uint64) (*Session, error) {
	r.mu.RLock()
	ent, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrSessionNotFound, "session not found")
	}
	return ent.snap.Load().Clone(), nil
}

// ListSessionsByState returns snapshots of every session in the given state.
func (r *Registry) ListSessionsByState(state State) []*Session {
	r.mu.RLock()
	snaps := make([]*Session, 0, len(r.entries))
	for _, ent := range r.entries {
		if s := ent.snap.Load(); s != nil {
			snaps = append(snaps, s)
		}
	}
	r.mu.RUnlock()

	return lo.FilterMap(snaps, func(s *Session, _ int) (*Session, bool) {
		if s.State != state {
			return nil, false
		}
		return s.Clone(), true
	})
}

// Remove drops a terminal session from the live set. Non-terminal sessions
// stay put.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[id]
	if !ok {
		return false
	}
	if s := ent.snap.Load(); s != nil && !s.State.Terminal() {
		return false
	}
	delete(r.entries, id)
	return true
}

// mutate serializes a single session's mutation: clone the snapshot, apply fn
// to the clone, swap the clone in on success. A mutation already in flight
// surfaces as ErrSessionBusy rather than blocking the caller.
func (r *Registry) mutate(id uint64, fn func(*Session) (*Outcome, error)) (*Session, error) {
	r.mu.RLock()
	ent, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrSessionNotFound, "session not found")
	}

	if !ent.mu.TryLock() {
		return nil, errors.New(errors.ErrSessionBusy, "session is processing another action")
	}
	defer ent.mu.Unlock()

	next := ent.snap.Load().Clone()
	outcome, err := fn(next)
	if err != nil {
		return nil, err
	}

	ent.snap.Store(next)
	r.notify(next, outcome)
	return next.Clone(), nil
}

func (r *Registry) notify(s *Session, outcome *Outcome) {
	if r.onChange != nil {
		r.onChange(s.Clone(), outcome)
	}
}
