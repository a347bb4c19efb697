package game

import (
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

// BettingRoundEngine drives the fixed three-round betting sequence of a
// strategic duel. Contributions persist across rounds; proportional win odds
// are implied by contributions at all times and realized by a weighted draw
// after the final round.
type BettingRoundEngine struct {
	rng     Source
	ceiling decimal.Decimal // per-player contribution ceiling
}

// NewBettingRoundEngine creates the engine. ceiling caps any single player's
// total contribution; raises that would exceed it are rejected.
func NewBettingRoundEngine(rng Source, ceiling decimal.Decimal) *BettingRoundEngine {
	return &BettingRoundEngine{rng: rng, ceiling: ceiling}
}

// Apply processes one betting action for the player whose turn it is. It
// returns a non-nil Outcome when the session reaches a terminal state (fold,
// or weighted resolution after the final round).
func (e *BettingRoundEngine) Apply(s *Session, playerID string, action BettingAction) (*Outcome, error) {
	if s.Kind != KindStrategicDuel {
		return nil, errors.New(errors.ErrStateError, "betting actions are only valid for strategic duels")
	}
	if s.State != StateActive {
		return nil, errors.New(errors.ErrStateError, "session is not accepting bets")
	}

	player, ok := s.PlayerByIdentity(playerID)
	if !ok {
		return nil, errors.New(errors.ErrNotParticipant, "player is not in this session")
	}
	if player.HasFolded {
		return nil, errors.New(errors.ErrStateError, "player has folded")
	}

	round := s.CurrentRound()
	if round == nil {
		round = &BettingRound{Index: s.RoundIndex, Actions: make(map[string]BettingAction)}
		s.Rounds = append(s.Rounds, round)
	}

	if turn := e.actorFor(s, round); turn != playerID {
		return nil, errors.New(errors.ErrStateError, "not this player's turn")
	}

	switch action.Kind {
	case ActionCheck:
		if e.outstanding(s, player).IsPositive() {
			return nil, errors.New(errors.ErrStateError, "cannot check facing an open raise")
		}
	case ActionCall:
		toCall := e.outstanding(s, player)
		if !toCall.IsPositive() {
			return nil, errors.New(errors.ErrNothingToCall, "no open raise to call")
		}
		player.Contribution = player.Contribution.Add(toCall)
		s.Pot = s.Pot.Add(toCall)
		action.Amount = toCall
	case ActionRaise:
		if !action.Amount.IsPositive() {
			return nil, errors.New(errors.ErrInvalidAmount, "raise amount must be positive")
		}
		target := e.highestContribution(s).Add(action.Amount)
		if target.GreaterThan(e.ceiling) {
			return nil, errors.New(errors.ErrInsufficientBalance, "raise exceeds the stake ceiling")
		}
		delta := target.Sub(player.Contribution)
		player.Contribution = target
		s.Pot = s.Pot.Add(delta)
	case ActionFold:
		return e.fold(s, player, round, false)
	default:
		return nil, errors.New(errors.ErrUnknownAction, "unknown betting action")
	}

	round.Actions[playerID] = action
	player.LastAction = &action

	return e.maybeAdvanceRound(s, round)
}

// ResolveTimeout treats the player who failed to act in time as having
// folded.
func (e *BettingRoundEngine) ResolveTimeout(s *Session) (*Outcome, error) {
	round := s.CurrentRound()
	if round == nil {
		round = &BettingRound{Index: s.RoundIndex, Actions: make(map[string]BettingAction)}
		s.Rounds = append(s.Rounds, round)
	}
	stalled, ok := s.PlayerByIdentity(e.actorFor(s, round))
	if !ok {
		s.advance(StateCancelled)
		return &Outcome{Kind: SettlementRefund}, nil
	}
	return e.fold(s, stalled, round, true)
}

// fold ends the session immediately: the opponent is awarded the pot with no
// randomness involved.
func (e *BettingRoundEngine) fold(s *Session, player *Player, round *BettingRound, forced bool) (*Outcome, error) {
	player.HasFolded = true
	action := BettingAction{Kind: ActionFold}
	round.Actions[player.Identity] = action
	player.LastAction = &action

	opponent, ok := s.Opponent(player.Identity)
	if !ok {
		return nil, errors.New(errors.ErrStateError, "fold requires an opponent")
	}

	s.Winner = opponent.Identity
	if !s.advance(StateCompleted) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
	}
	return &Outcome{
		Kind:    SettlementWinnerTakesPot,
		Winner:  opponent.Identity,
		Folder:  player.Identity,
		Forfeit: forced,
	}, nil
}

// maybeAdvanceRound completes the round once every active player has acted,
// and resolves the duel after the final round.
func (e *BettingRoundEngine) maybeAdvanceRound(s *Session, round *BettingRound) (*Outcome, error) {
	for _, p := range s.ActivePlayers() {
		if _, acted := round.Actions[p.Identity]; !acted {
			return nil, nil
		}
	}
	round.Completed = true
	s.RoundIndex++

	if s.RoundIndex < s.MaxRounds {
		return nil, nil
	}
	return e.resolveWeighted(s)
}

// resolveWeighted draws the winner with each player's weight equal to their
// final contribution share. The draw comes from the injected Source so
// neither player can predict or influence it after the stakes lock.
func (e *BettingRoundEngine) resolveWeighted(s *Session) (*Outcome, error) {
	if !s.advance(StateResolving) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to resolving")
	}

	active := s.ActivePlayers()
	weights := make([]decimal.Decimal, len(active))
	for i, p := range active {
		weights[i] = p.Contribution
	}

	idx, err := drawWeightedIndex(e.rng, weights)
	if err != nil {
		return nil, err
	}

	s.Winner = active[idx].Identity
	if !s.advance(StateCompleted) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
	}
	return &Outcome{Kind: SettlementWinnerTakesPot, Winner: s.Winner}, nil
}

// actorFor returns whose turn it is in the given round. The creator opens
// every round; turn order alternates within it.
func (e *BettingRoundEngine) actorFor(s *Session, round *BettingRound) string {
	order := make([]*Player, 0, 2)
	for _, p := range s.Players {
		if p.Identity == s.Creator {
			order = append([]*Player{p}, order...)
		} else {
			order = append(order, p)
		}
	}
	for _, p := range order {
		if _, acted := round.Actions[p.Identity]; !acted && !p.HasFolded {
			return p.Identity
		}
	}
	return ""
}

// outstanding is how much the player must add to match the highest
// contribution.
func (e *BettingRoundEngine) outstanding(s *Session, player *Player) decimal.Decimal {
	diff := e.highestContribution(s).Sub(player.Contribution)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

func (e *BettingRoundEngine) highestContribution(s *Session) decimal.Decimal {
	highest := decimal.Zero
	for _, p := range s.Players {
		if p.Contribution.GreaterThan(highest) {
			highest = p.Contribution
		}
	}
	return highest
}
