package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/config"
	"github.com/Simlowker/solduel-gaming-platform/errors"
	"github.com/Simlowker/solduel-gaming-platform/events/kafka"
	"github.com/Simlowker/solduel-gaming-platform/game"
	"github.com/Simlowker/solduel-gaming-platform/pkg/lobby"
	"github.com/Simlowker/solduel-gaming-platform/provider"
)

const (
	defaultSessionTopic = "session-events"
	settleQueueSize     = 256
	pendingRetryBatch   = 50

	// settleOnceTTL bounds the cross-instance guard that keeps two nodes
	// from executing the same settlement's transfers concurrently.
	settleOnceTTL = 24 * time.Hour
)

type settleJob struct {
	session *game.Session
	outcome *game.Outcome
}

// Cache is the slice of the redis client the service needs for its
// cross-instance settle guard. *redis.Client satisfies it.
type Cache interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// EventPublisher pushes session lifecycle events to the bus.
// *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishSessionEvent(topic string, event kafka.SessionEvent) error
}

// SessionService orchestrates the full lifecycle of a wager session: funds
// move through the ledger around every registry mutation, and terminal
// outcomes are settled exactly once through the archive, ledger, event bus
// and history service.
type SessionService struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *game.Registry
	payout   *game.PayoutCalculator
	ledger   LedgerProvider
	archive  ArchiveProvider
	history  LogProvider
	cache    Cache
	producer EventPublisher
	lobby    *lobby.Service
	topic    string

	settleJobs chan settleJob
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewSessionService wires the service and hooks it into the registry's
// change feed so every mutation reaches the lobby and the settle queue.
func NewSessionService(
	cfg *config.Config,
	logger zerolog.Logger,
	registry *game.Registry,
	payout *game.PayoutCalculator,
	ledger LedgerProvider,
	archive ArchiveProvider,
	history LogProvider,
	cache Cache,
	producer EventPublisher,
	lobbySvc *lobby.Service,
) *SessionService {
	topic := cfg.Kafka.Topics["session_events"]
	if topic == "" {
		topic = defaultSessionTopic
	}

	svc := &SessionService{
		cfg:        cfg,
		logger:     logger.With().Str("component", "session_service").Logger(),
		registry:   registry,
		payout:     payout,
		ledger:     ledger,
		archive:    archive,
		history:    history,
		cache:      cache,
		producer:   producer,
		lobby:      lobbySvc,
		topic:      topic,
		settleJobs: make(chan settleJob, settleQueueSize),
	}
	registry.SetOnChange(svc.onSessionChange)
	return svc
}

// Start launches the settle workers and the sweep loop. It returns once the
// context is cancelled and all in-flight settlements have drained.
func (svc *SessionService) Start(ctx context.Context) {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		for job := range svc.settleJobs {
			svc.settle(context.Background(), job.session, job.outcome)
		}
	}()

	interval := svc.cfg.Game.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				svc.Stop()
				return
			case now := <-ticker.C:
				svc.sweep(ctx, now)
			}
		}
	}()
}

// Stop closes the settle queue; queued settlements still run to completion.
func (svc *SessionService) Stop() {
	svc.stopOnce.Do(func() {
		close(svc.settleJobs)
	})
}

// Wait blocks until the settle workers and sweep loop have exited.
func (svc *SessionService) Wait() {
	svc.wg.Wait()
}

// onSessionChange runs inside the registry's per-session critical section,
// so it must not block: lobby publication is buffered, and settlements are
// handed to the worker queue.
func (svc *SessionService) onSessionChange(s *game.Session, outcome *game.Outcome) {
	svc.lobby.Publish(s)
	if outcome == nil {
		return
	}
	select {
	case svc.settleJobs <- settleJob{session: s, outcome: outcome}:
	default:
		svc.logger.Warn().Uint64("session_id", s.ID).Msg("settle queue full, settling inline")
		go svc.settle(context.Background(), s, outcome)
	}
}

// CreateSession escrows the creator's stake and opens a session with it. No
// session ID exists before the escrow, so the reference is creator-scoped; a
// rejected create refunds against the same reference.
func (svc *SessionService) CreateSession(ctx context.Context, playerID string, kind game.Kind, stake decimal.Decimal) (*game.Session, error) {
	ref := fmt.Sprintf("escrow:create:%s:%d", playerID, time.Now().UnixNano())
	if err := svc.ledger.Escrow(ctx, playerID, ref, stake); err != nil {
		return nil, errors.Wrap(err, errors.ErrLedgerError, "failed to escrow stake")
	}

	s, err := svc.registry.CreateSession(kind, playerID, stake)
	if err != nil {
		if refundErr := svc.ledger.Refund(ctx, playerID, ref, stake); refundErr != nil {
			svc.logger.Error().Err(refundErr).
				Str("player_id", playerID).
				Msg("escrow refund after rejected create failed")
		}
		return nil, err
	}

	svc.publishEvent(kafka.EventSessionCreated, s, playerID, stake)
	return s, nil
}

// JoinSession escrows the joining player's stake and admits them. The join
// is attempted only after the funds are in custody; a rejected join refunds
// the escrow immediately.
func (svc *SessionService) JoinSession(ctx context.Context, sessionID uint64, playerID string, stake decimal.Decimal) (*game.Session, error) {
	ref := stakeReference(sessionID, playerID)
	if err := svc.ledger.Escrow(ctx, playerID, ref, stake); err != nil {
		return nil, errors.Wrap(err, errors.ErrLedgerError, "failed to escrow stake")
	}

	s, err := svc.registry.JoinSession(sessionID, playerID, stake)
	if err != nil {
		if refundErr := svc.ledger.Refund(ctx, playerID, ref, stake); refundErr != nil {
			svc.logger.Error().Err(refundErr).
				Uint64("session_id", sessionID).
				Str("player_id", playerID).
				Msg("escrow refund after rejected join failed")
		}
		return nil, err
	}

	svc.publishEvent(kafka.EventPlayerJoined, s, playerID, stake)
	return s, nil
}

// CancelSession lets the creator abandon an unjoined session. The refund
// itself rides the settlement pipeline.
func (svc *SessionService) CancelSession(ctx context.Context, sessionID uint64, playerID string) (*game.Session, error) {
	return svc.registry.CancelSession(sessionID, playerID)
}

// Act routes one player action. Actions that add funds to the pot (enter,
// call, raise) escrow the increment first and refund it if the engine
// rejects the action.
func (svc *SessionService) Act(ctx context.Context, sessionID uint64, playerID string, action game.Action) (*game.Session, error) {
	amount, ref, err := svc.escrowAmount(sessionID, playerID, action)
	if err != nil {
		return nil, err
	}

	if amount.IsPositive() {
		if err := svc.ledger.Escrow(ctx, playerID, ref, amount); err != nil {
			return nil, errors.Wrap(err, errors.ErrLedgerError, "failed to escrow funds")
		}
	}

	s, err := svc.registry.Dispatch(sessionID, playerID, action)
	if err != nil {
		if amount.IsPositive() {
			if refundErr := svc.ledger.Refund(ctx, playerID, ref, amount); refundErr != nil {
				svc.logger.Error().Err(refundErr).
					Uint64("session_id", sessionID).
					Str("player_id", playerID).
					Msg("escrow refund after rejected action failed")
			}
		}
		return nil, err
	}

	svc.publishEvent(eventTypeForAction(action.Kind), s, playerID, amount)
	return s, nil
}

// GetSession returns a point-in-time snapshot of one live session.
func (svc *SessionService) GetSession(sessionID uint64) (*game.Session, error) {
	return svc.registry.GetSession(sessionID)
}

// ListSessionsByState returns snapshots of all live sessions in a state.
func (svc *SessionService) ListSessionsByState(state game.State) []*game.Session {
	return svc.registry.ListSessionsByState(state)
}

// GetSettlement returns the archived settlement for a finished session.
func (svc *SessionService) GetSettlement(ctx context.Context, sessionID uint64) (*game.Settlement, error) {
	return svc.archive.GetSettlement(ctx, sessionID)
}

// GetBalance proxies the player's ledger balance.
func (svc *SessionService) GetBalance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	return svc.ledger.GetBalance(ctx, playerID)
}

// GetHistory pages a player's archived sessions from the history service.
func (svc *SessionService) GetHistory(ctx context.Context, query *SessionHistoryQuery) (*SessionHistoryResponse, error) {
	return svc.history.GetSessionHistory(ctx, query)
}

// escrowAmount computes how much an action adds to the pot and the ledger
// reference covering it. Call amounts are derived from the current snapshot;
// only the acting player can change their own outstanding amount, so the
// value stays correct through Dispatch. References for call and raise are
// stable per (session, player, round), so a retried request cannot
// double-escrow. Lottery entries may legitimately repeat, so they get a
// timestamped reference instead.
func (svc *SessionService) escrowAmount(sessionID uint64, playerID string, action game.Action) (decimal.Decimal, string, error) {
	switch action.Kind {
	case game.ActionEnter:
		if !action.Amount.IsPositive() {
			return decimal.Zero, "", errors.New(errors.ErrInvalidAmount, "amount must be positive")
		}
		ref := fmt.Sprintf("escrow:%d:%s:enter:%d", sessionID, playerID, time.Now().UnixNano())
		return action.Amount, ref, nil

	case game.ActionRaise:
		if !action.Amount.IsPositive() {
			return decimal.Zero, "", errors.New(errors.ErrInvalidAmount, "amount must be positive")
		}
		s, err := svc.registry.GetSession(sessionID)
		if err != nil {
			return decimal.Zero, "", err
		}
		return action.Amount, roundReference(sessionID, playerID, s.RoundIndex, action.Kind), nil

	case game.ActionCall:
		s, err := svc.registry.GetSession(sessionID)
		if err != nil {
			return decimal.Zero, "", err
		}
		p, ok := s.PlayerByIdentity(playerID)
		if !ok {
			return decimal.Zero, "", errors.New(errors.ErrNotParticipant, "player is not in this session")
		}
		highest := decimal.Zero
		for _, other := range s.Players {
			if other.Contribution.GreaterThan(highest) {
				highest = other.Contribution
			}
		}
		outstanding := highest.Sub(p.Contribution)
		if !outstanding.IsPositive() {
			return decimal.Zero, "", errors.New(errors.ErrNothingToCall, "no outstanding amount to call")
		}
		return outstanding, roundReference(sessionID, playerID, s.RoundIndex, action.Kind), nil

	default:
		return decimal.Zero, "", nil
	}
}

// settle executes one terminal session's money movement exactly once.
//
// The settlement is archived before any transfer runs, so a crash mid-way
// leaves enough state for the sweep loop to finish the job. The ledger
// dedupes by reference, which makes retries safe.
func (svc *SessionService) settle(ctx context.Context, s *game.Session, outcome *game.Outcome) {
	logger := svc.logger.With().Uint64("session_id", s.ID).Logger()

	settlement, err := svc.payout.Settle(s, outcome)
	if err != nil {
		logger.Error().Err(err).Msg("payout calculation failed")
		return
	}

	acquired, err := svc.cache.SetNX(ctx, settleOnceKey(s.ID), 1, settleOnceTTL)
	if err != nil {
		logger.Error().Err(err).Msg("settle guard unavailable, deferring to sweep")
		if markErr := svc.archive.MarkPending(ctx, s.ID); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark settlement pending")
		}
		return
	}
	if !acquired {
		logger.Debug().Msg("settlement already handled by another node")
		return
	}

	if err := svc.archive.SaveSession(ctx, s); err != nil {
		logger.Error().Err(err).Msg("failed to archive session")
	}
	if err := svc.archive.SaveSettlement(ctx, settlement); err != nil {
		logger.Error().Err(err).Msg("failed to archive settlement")
	}

	if err := svc.executeTransfers(ctx, settlement); err != nil {
		logger.Error().Err(err).Msg("settlement transfers incomplete, queuing for retry")
		if markErr := svc.archive.MarkPending(ctx, s.ID); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark settlement pending")
		}
	}

	svc.publishSettled(s, settlement)

	if _, err := svc.history.LogSettlement(ctx, s, settlement); err != nil {
		logger.Warn().Err(err).Msg("history service rejected settlement record")
	}

	svc.registry.Remove(s.ID)
	logger.Info().
		Str("kind", string(settlement.Kind)).
		Str("winner", settlement.Winner).
		Str("fee", settlement.Fee.String()).
		Msg("session settled")
}

// executeTransfers pushes every settlement leg through the ledger. Winner
// legs disburse, every other leg is a refund. The first error aborts the
// pass; already-completed legs are deduped by reference on retry.
func (svc *SessionService) executeTransfers(ctx context.Context, st *game.Settlement) error {
	for _, t := range st.Transfers {
		ref := provider.SettlementReference(st.SessionID, t.Recipient)
		var err error
		if t.Recipient == st.Winner && !st.Refund {
			err = svc.ledger.Disburse(ctx, t.Recipient, ref, t.Amount)
		} else {
			err = svc.ledger.Refund(ctx, t.Recipient, ref, t.Amount)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrLedgerError,
				fmt.Sprintf("transfer to %s failed", t.Recipient))
		}
	}

	if st.Fee.IsPositive() && st.Treasury != "" {
		ref := provider.SettlementReference(st.SessionID, st.Treasury)
		if err := svc.ledger.Disburse(ctx, st.Treasury, ref, st.Fee); err != nil {
			return errors.Wrap(err, errors.ErrLedgerError, "fee transfer failed")
		}
		event := kafka.SessionEvent{
			Type:      kafka.EventFeeCollected,
			SessionID: st.SessionID,
			Fee:       st.Fee,
			Timestamp: time.Now(),
		}
		if err := svc.producer.PublishSessionEvent(svc.topic, event); err != nil {
			svc.logger.Warn().Err(err).Uint64("session_id", st.SessionID).Msg("failed to publish fee event")
		}
	}
	return nil
}

// sweep expires stale sessions and retries settlements whose transfers
// previously failed.
func (svc *SessionService) sweep(ctx context.Context, now time.Time) {
	expired := svc.registry.ExpireStale(now)
	for _, s := range expired {
		if s.Winner != "" {
			svc.publishEvent(kafka.EventPlayerTimedOut, s, "", decimal.Zero)
		}
	}

	svc.retryPending(ctx)
}

// retryPending re-runs the ledger legs of settlements that did not complete.
func (svc *SessionService) retryPending(ctx context.Context) {
	ids, err := svc.archive.TakePending(ctx, pendingRetryBatch)
	if err != nil {
		svc.logger.Error().Err(err).Msg("failed to drain pending settlements")
		return
	}

	for _, id := range ids {
		st, err := svc.archive.GetSettlement(ctx, id)
		if err != nil {
			svc.logger.Error().Err(err).Uint64("session_id", id).Msg("pending settlement missing from archive")
			continue
		}
		if err := svc.executeTransfers(ctx, st); err != nil {
			svc.logger.Warn().Err(err).Uint64("session_id", id).Msg("settlement retry failed, re-queuing")
			if markErr := svc.archive.MarkPending(ctx, id); markErr != nil {
				svc.logger.Error().Err(markErr).Uint64("session_id", id).Msg("failed to re-queue settlement")
			}
			continue
		}
		svc.logger.Info().Uint64("session_id", id).Msg("pending settlement completed")
	}
}

func (svc *SessionService) publishEvent(eventType string, s *game.Session, playerID string, amount decimal.Decimal) {
	event := kafka.NewSessionEvent(eventType, s)
	event.PlayerID = playerID
	if amount.IsPositive() {
		event.Amount = amount
	}
	if err := svc.producer.PublishSessionEvent(svc.topic, event); err != nil {
		svc.logger.Warn().Err(err).
			Uint64("session_id", s.ID).
			Str("event_type", eventType).
			Msg("failed to publish session event")
	}
}

func (svc *SessionService) publishSettled(s *game.Session, st *game.Settlement) {
	eventType := kafka.EventSessionResolved
	if st.Refund {
		eventType = kafka.EventSessionCancelled
	}
	event := kafka.NewSessionEvent(eventType, s)
	event.Outcome = st.Kind
	event.Fee = st.Fee
	if err := svc.producer.PublishSessionEvent(svc.topic, event); err != nil {
		svc.logger.Warn().Err(err).Uint64("session_id", s.ID).Msg("failed to publish settlement event")
	}
}

func eventTypeForAction(kind game.ActionKind) string {
	switch kind {
	case game.ActionCommit:
		return kafka.EventMoveCommitted
	case game.ActionReveal:
		return kafka.EventMoveRevealed
	case game.ActionEnter:
		return kafka.EventLotteryEntered
	case game.ActionCheck, game.ActionCall, game.ActionRaise, game.ActionFold:
		return kafka.EventBetPlaced
	default:
		return kafka.EventBetPlaced
	}
}

func stakeReference(sessionID uint64, playerID string) string {
	return fmt.Sprintf("escrow:%d:%s:stake", sessionID, playerID)
}

func roundReference(sessionID uint64, playerID string, round int, kind game.ActionKind) string {
	return fmt.Sprintf("escrow:%d:%s:round:%d:%s", sessionID, playerID, round, kind)
}

func settleOnceKey(sessionID uint64) string {
	return fmt.Sprintf("settlement:once:%d", sessionID)
}
