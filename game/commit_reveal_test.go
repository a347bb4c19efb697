package game

import (
	"bytes"
	"testing"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

func testNonce(fill byte) []byte {
	n := make([]byte, NonceSize)
	for i := range n {
		n[i] = fill
	}
	return n
}

func commitBoth(t *testing.T, e *CommitRevealEngine, s *Session, moveA, moveB Move, nonceA, nonceB []byte) {
	t.Helper()
	if err := e.Commit(s, "alice", CommitHash(moveA, nonceA)); err != nil {
		t.Fatalf("alice commit failed: %v", err)
	}
	if err := e.Commit(s, "bob", CommitHash(moveB, nonceB)); err != nil {
		t.Fatalf("bob commit failed: %v", err)
	}
}

func TestCommitHashFormat(t *testing.T) {
	nonce := testNonce(0x5a)
	h := CommitHash(MoveRock, nonce)
	if len(h) != CommitHashSize {
		t.Fatalf("expected %d-byte hash, got %d", CommitHashSize, len(h))
	}
	// Same inputs must produce the same bytes; a different move must not.
	if !bytes.Equal(h, CommitHash(MoveRock, nonce)) {
		t.Error("commit hash is not deterministic")
	}
	if bytes.Equal(h, CommitHash(MovePaper, nonce)) {
		t.Error("different moves produced the same commit hash")
	}

	decoded, err := DecodeCommitHash(EncodeCommitHash(h))
	if err != nil {
		t.Fatalf("decode of encoded hash failed: %v", err)
	}
	if !bytes.Equal(decoded, h) {
		t.Error("encode/decode round trip changed the hash")
	}
	if _, err := DecodeCommitHash("not-a-hash"); err == nil {
		t.Error("expected error for malformed hash string")
	}
}

func TestCoinFlipResolution(t *testing.T) {
	tests := []struct {
		name       string
		draw       uint64 // 0 = heads, 1 = tails
		wantWinner string
	}{
		{name: "flip lands heads, alice guessed heads", draw: 0, wantWinner: "alice"},
		{name: "flip lands tails, bob guessed tails", draw: 1, wantWinner: "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCommitRevealEngine(&fixedSource{vals: []uint64{tt.draw}})
			s := newActiveDuel(KindSimpleDuel, dec("1"))
			nonceA, nonceB := testNonce(1), testNonce(2)
			commitBoth(t, e, s, MoveHeads, MoveTails, nonceA, nonceB)

			if s.State != StateResolving {
				t.Fatalf("expected resolving after both commits, got %s", s.State)
			}

			if _, err := e.Reveal(s, "alice", MoveHeads, nonceA); err != nil {
				t.Fatalf("alice reveal failed: %v", err)
			}
			outcome, err := e.Reveal(s, "bob", MoveTails, nonceB)
			if err != nil {
				t.Fatalf("bob reveal failed: %v", err)
			}

			if outcome == nil || outcome.Kind != SettlementWinnerTakesPot {
				t.Fatalf("expected winner-takes-pot outcome, got %+v", outcome)
			}
			if outcome.Winner != tt.wantWinner {
				t.Errorf("expected winner %s, got %s", tt.wantWinner, outcome.Winner)
			}
			if s.State != StateCompleted {
				t.Errorf("expected completed state, got %s", s.State)
			}
		})
	}
}

func TestCoinFlipSameGuessRefunds(t *testing.T) {
	e := NewCommitRevealEngine(&fixedSource{vals: []uint64{0}})
	s := newActiveDuel(KindSimpleDuel, dec("1"))
	nonceA, nonceB := testNonce(1), testNonce(2)
	commitBoth(t, e, s, MoveHeads, MoveHeads, nonceA, nonceB)

	if _, err := e.Reveal(s, "alice", MoveHeads, nonceA); err != nil {
		t.Fatalf("alice reveal failed: %v", err)
	}
	outcome, err := e.Reveal(s, "bob", MoveHeads, nonceB)
	if err != nil {
		t.Fatalf("bob reveal failed: %v", err)
	}
	if outcome.Kind != SettlementRefund {
		t.Errorf("expected refund for matching guesses, got %s", outcome.Kind)
	}
	if !s.IsDraw {
		t.Error("expected session flagged as draw")
	}
}

func TestRockPaperScissors(t *testing.T) {
	tests := []struct {
		name       string
		moveA      Move
		moveB      Move
		wantWinner string
		wantDraw   bool
	}{
		{name: "rock beats scissors", moveA: MoveRock, moveB: MoveScissors, wantWinner: "alice"},
		{name: "paper beats rock", moveA: MoveRock, moveB: MovePaper, wantWinner: "bob"},
		{name: "scissors beats paper", moveA: MoveScissors, moveB: MovePaper, wantWinner: "alice"},
		{name: "identical moves refund", moveA: MoveRock, moveB: MoveRock, wantDraw: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCommitRevealEngine(&fixedSource{})
			s := newActiveDuel(KindSimpleDuel, dec("1"))
			nonceA, nonceB := testNonce(1), testNonce(2)
			commitBoth(t, e, s, tt.moveA, tt.moveB, nonceA, nonceB)

			if _, err := e.Reveal(s, "alice", tt.moveA, nonceA); err != nil {
				t.Fatalf("alice reveal failed: %v", err)
			}
			outcome, err := e.Reveal(s, "bob", tt.moveB, nonceB)
			if err != nil {
				t.Fatalf("bob reveal failed: %v", err)
			}

			if tt.wantDraw {
				if outcome.Kind != SettlementRefund {
					t.Errorf("expected refund, got %s", outcome.Kind)
				}
				return
			}
			if outcome.Winner != tt.wantWinner {
				t.Errorf("expected winner %s, got %s", tt.wantWinner, outcome.Winner)
			}
		})
	}
}

func TestCommitRejections(t *testing.T) {
	e := NewCommitRevealEngine(&fixedSource{})
	s := newActiveDuel(KindSimpleDuel, dec("1"))
	hash := CommitHash(MoveRock, testNonce(1))

	if err := e.Commit(s, "mallory", hash); errors.GetCode(err) != errors.ErrNotParticipant {
		t.Errorf("expected not-participant error, got %v", err)
	}
	if err := e.Commit(s, "alice", hash[:16]); errors.GetCode(err) != errors.ErrInvalidRequest {
		t.Errorf("expected invalid-request for short hash, got %v", err)
	}
	if err := e.Commit(s, "alice", hash); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if err := e.Commit(s, "alice", hash); errors.GetCode(err) != errors.ErrAlreadyCommitted {
		t.Errorf("expected already-committed error, got %v", err)
	}
}

func TestRevealRejections(t *testing.T) {
	e := NewCommitRevealEngine(&fixedSource{})
	s := newActiveDuel(KindSimpleDuel, dec("1"))
	nonceA, nonceB := testNonce(1), testNonce(2)

	// Reveals are only accepted once both commitments are in.
	if _, err := e.Reveal(s, "alice", MoveRock, nonceA); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected state error before commits, got %v", err)
	}

	commitBoth(t, e, s, MoveRock, MoveScissors, nonceA, nonceB)

	// Tampered move: committed rock, revealing paper.
	if _, err := e.Reveal(s, "alice", MovePaper, nonceA); errors.GetCode(err) != errors.ErrInvalidReveal {
		t.Errorf("expected invalid-reveal for wrong move, got %v", err)
	}
	// Tampered nonce.
	if _, err := e.Reveal(s, "alice", MoveRock, testNonce(9)); errors.GetCode(err) != errors.ErrInvalidReveal {
		t.Errorf("expected invalid-reveal for wrong nonce, got %v", err)
	}
	// A failed reveal must not consume the commitment.
	if _, err := e.Reveal(s, "alice", MoveRock, nonceA); err != nil {
		t.Errorf("valid reveal after failed attempts should succeed, got %v", err)
	}
	if _, err := e.Reveal(s, "alice", MoveRock, nonceA); errors.GetCode(err) != errors.ErrAlreadyRevealed {
		t.Errorf("expected already-revealed error, got %v", err)
	}
}

func TestDuelTimeoutForfeit(t *testing.T) {
	e := NewCommitRevealEngine(&fixedSource{})

	t.Run("one side committed wins by forfeit", func(t *testing.T) {
		s := newActiveDuel(KindSimpleDuel, dec("1"))
		if err := e.Commit(s, "alice", CommitHash(MoveHeads, testNonce(1))); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		outcome, err := e.ResolveTimeout(s)
		if err != nil {
			t.Fatalf("timeout resolution failed: %v", err)
		}
		if outcome.Winner != "alice" || !outcome.Forfeit {
			t.Errorf("expected forfeit win for alice, got %+v", outcome)
		}
	})

	t.Run("neither side committed refunds", func(t *testing.T) {
		s := newActiveDuel(KindSimpleDuel, dec("1"))
		outcome, err := e.ResolveTimeout(s)
		if err != nil {
			t.Fatalf("timeout resolution failed: %v", err)
		}
		if outcome.Kind != SettlementRefund {
			t.Errorf("expected refund, got %s", outcome.Kind)
		}
		if s.State != StateCancelled {
			t.Errorf("expected cancelled state, got %s", s.State)
		}
	})

	t.Run("one side revealed wins by forfeit", func(t *testing.T) {
		s := newActiveDuel(KindSimpleDuel, dec("1"))
		nonceA, nonceB := testNonce(1), testNonce(2)
		commitBoth(t, e, s, MoveRock, MoveScissors, nonceA, nonceB)
		if _, err := e.Reveal(s, "bob", MoveScissors, nonceB); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}
		outcome, err := e.ResolveTimeout(s)
		if err != nil {
			t.Fatalf("timeout resolution failed: %v", err)
		}
		if outcome.Winner != "bob" || !outcome.Forfeit {
			t.Errorf("expected forfeit win for bob, got %+v", outcome)
		}
	})
}
