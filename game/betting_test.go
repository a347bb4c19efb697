package game

import (
	"testing"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

func mustApply(t *testing.T, e *BettingRoundEngine, s *Session, player string, action BettingAction) *Outcome {
	t.Helper()
	outcome, err := e.Apply(s, player, action)
	if err != nil {
		t.Fatalf("%s %s failed: %v", player, action.Kind, err)
	}
	return outcome
}

func TestBettingFullDuel(t *testing.T) {
	// Draw of 3.0 in scaled units lands in bob's bracket of the final
	// 2.0 / 2.0 split.
	rng := &fixedSource{vals: []uint64{300_000_000}}
	e := NewBettingRoundEngine(rng, dec("10"))
	s := newActiveDuel(KindStrategicDuel, dec("1"))

	// Round 1: alice checks, bob raises 0.5.
	mustApply(t, e, s, "alice", BettingAction{Kind: ActionCheck})
	mustApply(t, e, s, "bob", BettingAction{Kind: ActionRaise, Amount: dec("0.5")})
	if s.RoundIndex != 1 {
		t.Fatalf("expected round index 1, got %d", s.RoundIndex)
	}
	if !s.Pot.Equal(dec("2.5")) {
		t.Errorf("expected pot 2.5 after raise, got %s", s.Pot)
	}

	// Round 2: alice faces the open raise and must call; bob checks behind.
	if _, err := e.Apply(s, "alice", BettingAction{Kind: ActionCheck}); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected check rejected facing open raise, got %v", err)
	}
	mustApply(t, e, s, "alice", BettingAction{Kind: ActionCall})
	alice, _ := s.PlayerByIdentity("alice")
	if !alice.Contribution.Equal(dec("1.5")) {
		t.Errorf("expected alice contribution 1.5 after call, got %s", alice.Contribution)
	}
	mustApply(t, e, s, "bob", BettingAction{Kind: ActionCheck})

	// Round 3: alice raises 0.5 on top of the 1.5 high, bob calls.
	mustApply(t, e, s, "alice", BettingAction{Kind: ActionRaise, Amount: dec("0.5")})
	if !alice.Contribution.Equal(dec("2")) {
		t.Errorf("expected alice contribution 2 after raise, got %s", alice.Contribution)
	}
	outcome := mustApply(t, e, s, "bob", BettingAction{Kind: ActionCall})

	if outcome == nil || outcome.Kind != SettlementWinnerTakesPot {
		t.Fatalf("expected winner-takes-pot after final round, got %+v", outcome)
	}
	if outcome.Winner != "bob" {
		t.Errorf("expected bob to win the draw, got %s", outcome.Winner)
	}
	if s.State != StateCompleted {
		t.Errorf("expected completed state, got %s", s.State)
	}
	if !s.Pot.Equal(dec("4")) {
		t.Errorf("expected final pot 4, got %s", s.Pot)
	}
}

func TestBettingTurnOrder(t *testing.T) {
	e := NewBettingRoundEngine(&fixedSource{}, dec("10"))
	s := newActiveDuel(KindStrategicDuel, dec("1"))

	// The creator opens every round.
	if _, err := e.Apply(s, "bob", BettingAction{Kind: ActionCheck}); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected out-of-turn action rejected, got %v", err)
	}
	mustApply(t, e, s, "alice", BettingAction{Kind: ActionCheck})
	if _, err := e.Apply(s, "alice", BettingAction{Kind: ActionCheck}); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected double action rejected, got %v", err)
	}
}

func TestBettingRejections(t *testing.T) {
	e := NewBettingRoundEngine(&fixedSource{}, dec("2"))
	s := newActiveDuel(KindStrategicDuel, dec("1"))

	if _, err := e.Apply(s, "alice", BettingAction{Kind: ActionCall}); errors.GetCode(err) != errors.ErrNothingToCall {
		t.Errorf("expected nothing-to-call error, got %v", err)
	}
	if _, err := e.Apply(s, "alice", BettingAction{Kind: ActionRaise, Amount: dec("0")}); errors.GetCode(err) != errors.ErrInvalidAmount {
		t.Errorf("expected invalid-amount for zero raise, got %v", err)
	}
	if _, err := e.Apply(s, "alice", BettingAction{Kind: ActionRaise, Amount: dec("5")}); errors.GetCode(err) != errors.ErrInsufficientBalance {
		t.Errorf("expected ceiling rejection, got %v", err)
	}
	if _, err := e.Apply(s, "mallory", BettingAction{Kind: ActionCheck}); errors.GetCode(err) != errors.ErrNotParticipant {
		t.Errorf("expected not-participant error, got %v", err)
	}

	coin := newActiveDuel(KindSimpleDuel, dec("1"))
	if _, err := e.Apply(coin, "alice", BettingAction{Kind: ActionCheck}); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected betting rejected on simple duel, got %v", err)
	}
}

func TestBettingFold(t *testing.T) {
	e := NewBettingRoundEngine(&fixedSource{}, dec("10"))
	s := newActiveDuel(KindStrategicDuel, dec("1"))

	mustApply(t, e, s, "alice", BettingAction{Kind: ActionRaise, Amount: dec("0.5")})
	outcome := mustApply(t, e, s, "bob", BettingAction{Kind: ActionFold})

	if outcome.Kind != SettlementWinnerTakesPot {
		t.Fatalf("expected winner-takes-pot on fold, got %s", outcome.Kind)
	}
	if outcome.Winner != "alice" || outcome.Folder != "bob" {
		t.Errorf("expected alice winning over folded bob, got %+v", outcome)
	}
	if outcome.Forfeit {
		t.Error("voluntary fold must not be marked as forfeit")
	}
	if s.State != StateCompleted {
		t.Errorf("expected completed state, got %s", s.State)
	}
}

func TestBettingTimeoutFoldsCurrentActor(t *testing.T) {
	e := NewBettingRoundEngine(&fixedSource{}, dec("10"))
	s := newActiveDuel(KindStrategicDuel, dec("1"))

	// Alice acted; it is bob's turn when the clock runs out.
	mustApply(t, e, s, "alice", BettingAction{Kind: ActionCheck})
	outcome, err := e.ResolveTimeout(s)
	if err != nil {
		t.Fatalf("timeout resolution failed: %v", err)
	}
	if outcome.Winner != "alice" || outcome.Folder != "bob" {
		t.Errorf("expected stalled bob folded in alice's favor, got %+v", outcome)
	}
	if !outcome.Forfeit {
		t.Error("timeout fold must be marked as forfeit")
	}
}

func TestWinProbabilitiesTrackContributions(t *testing.T) {
	s := newActiveDuel(KindStrategicDuel, dec("1"))
	alice, _ := s.PlayerByIdentity("alice")
	bob, _ := s.PlayerByIdentity("bob")
	alice.Contribution = dec("1")
	bob.Contribution = dec("3")

	probs := s.WinProbabilities()
	if !probs["alice"].Equal(dec("0.25")) {
		t.Errorf("expected alice probability 0.25, got %s", probs["alice"])
	}
	if !probs["bob"].Equal(dec("0.75")) {
		t.Errorf("expected bob probability 0.75, got %s", probs["bob"])
	}

	sum := probs["alice"].Add(probs["bob"])
	if !sum.Equal(dec("1")) {
		t.Errorf("expected probabilities to sum to 1, got %s", sum)
	}
}
