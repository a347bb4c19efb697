package game

import (
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

// LotteryDrawEngine accumulates weighted entries into a shared pool and
// resolves it with a single draw proportional to each participant's total
// contribution.
type LotteryDrawEngine struct {
	rng      Source
	minStake decimal.Decimal
}

func NewLotteryDrawEngine(rng Source, minStake decimal.Decimal) *LotteryDrawEngine {
	return &LotteryDrawEngine{rng: rng, minStake: minStake}
}

// Enter adds amount to the pool on behalf of playerID. A repeat entry by an
// existing participant increases their weight rather than adding a seat. The
// pool becomes active once a second distinct participant enters.
func (e *LotteryDrawEngine) Enter(s *Session, playerID string, amount decimal.Decimal) error {
	if s.Kind != KindLottery {
		return errors.New(errors.ErrStateError, "session is not a lottery")
	}
	if s.State != StateWaiting && s.State != StateActive {
		return errors.New(errors.ErrSessionNotJoinable, "lottery is no longer accepting entries")
	}
	if amount.LessThan(e.minStake) {
		return errors.New(errors.ErrStakeTooSmall, "entry is below the minimum stake")
	}

	if existing, ok := s.PlayerByIdentity(playerID); ok {
		existing.Contribution = existing.Contribution.Add(amount)
	} else {
		if len(s.Players) >= s.Kind.MaxPlayers() {
			return errors.New(errors.ErrSessionFull, "lottery is full")
		}
		s.Players = append(s.Players, &Player{
			Identity:     playerID,
			InitialStake: amount,
			Contribution: amount,
		})
	}
	s.Pot = s.Pot.Add(amount)

	if s.State == StateWaiting && len(s.Players) >= 2 {
		s.advance(StateActive)
	}
	return nil
}

// Draw resolves the pool. Each participant's chance is their contribution
// divided by the pot, realized by a prefix-sum weighted draw.
func (e *LotteryDrawEngine) Draw(s *Session) (*Outcome, error) {
	if s.Kind != KindLottery {
		return nil, errors.New(errors.ErrStateError, "session is not a lottery")
	}
	if s.State != StateActive {
		return nil, errors.New(errors.ErrStateError, "lottery is not drawable")
	}
	if len(s.Players) == 0 {
		return nil, errors.New(errors.ErrNoParticipants, "lottery has no participants")
	}

	if !s.advance(StateResolving) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to resolving")
	}

	weights := make([]decimal.Decimal, len(s.Players))
	for i, p := range s.Players {
		weights[i] = p.Contribution
	}

	idx, err := drawWeightedIndex(e.rng, weights)
	if err != nil {
		return nil, err
	}

	s.Winner = s.Players[idx].Identity
	if !s.advance(StateCompleted) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
	}
	return &Outcome{Kind: SettlementWinnerTakesPot, Winner: s.Winner}, nil
}

// ResolveTimeout handles a stale lottery: a pool with at least two
// participants is drawn, a single-participant pool is cancelled and refunded.
func (e *LotteryDrawEngine) ResolveTimeout(s *Session) (*Outcome, error) {
	if len(s.Players) >= 2 && s.State == StateActive {
		return e.Draw(s)
	}
	s.advance(StateCancelled)
	s.CancelReason = CancelInsufficientPlayers
	return &Outcome{Kind: SettlementRefund}, nil
}
