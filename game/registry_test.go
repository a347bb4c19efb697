package game

import (
	"sync"
	"testing"
	"time"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

func TestCreateSessionValidation(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})

	tests := []struct {
		name     string
		kind     Kind
		creator  string
		stake    string
		wantCode int
	}{
		{name: "valid duel", kind: KindSimpleDuel, creator: "alice", stake: "1"},
		{name: "unknown kind", kind: Kind("slots"), creator: "alice", stake: "1", wantCode: errors.ErrStateError},
		{name: "missing creator", kind: KindSimpleDuel, creator: "", stake: "1", wantCode: errors.ErrInvalidRequest},
		{name: "stake below minimum", kind: KindSimpleDuel, creator: "alice", stake: "0.01", wantCode: errors.ErrStakeTooSmall},
		{name: "stake above maximum", kind: KindSimpleDuel, creator: "alice", stake: "100", wantCode: errors.ErrInvalidStake},
		{name: "lottery minimum is lower", kind: KindLottery, creator: "alice", stake: "0.05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.CreateSession(tt.kind, tt.creator, dec(tt.stake))
			if tt.wantCode != 0 {
				if errors.GetCode(err) != tt.wantCode {
					t.Errorf("expected code %d, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if s.State != StateWaiting {
				t.Errorf("expected waiting state, got %s", s.State)
			}
			if !s.Pot.Equal(dec(tt.stake)) {
				t.Errorf("expected pot %s, got %s", tt.stake, s.Pot)
			}
		})
	}
}

func TestJoinActivatesDuel(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	created, err := r.CreateSession(KindSimpleDuel, "alice", dec("1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := r.JoinSession(created.ID, "bob", dec("2")); errors.GetCode(err) != errors.ErrStakeMismatch {
		t.Errorf("expected stake-mismatch error, got %v", err)
	}
	if _, err := r.JoinSession(created.ID, "alice", dec("1")); errors.GetCode(err) != errors.ErrAlreadyJoined {
		t.Errorf("expected already-joined error, got %v", err)
	}

	joined, err := r.JoinSession(created.ID, "bob", dec("1"))
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if joined.State != StateActive {
		t.Errorf("expected active after second player, got %s", joined.State)
	}
	if !joined.Pot.Equal(dec("2")) {
		t.Errorf("expected pot 2, got %s", joined.Pot)
	}

	if _, err := r.JoinSession(created.ID, "carol", dec("1")); errors.GetCode(err) != errors.ErrSessionNotJoinable {
		t.Errorf("expected not-joinable once active, got %v", err)
	}
}

func TestCancelSession(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	created, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))

	if _, err := r.CancelSession(created.ID, "bob"); errors.GetCode(err) != errors.ErrNotParticipant {
		t.Errorf("expected only the creator to cancel, got %v", err)
	}

	cancelled, err := r.CancelSession(created.ID, "alice")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.State != StateCancelled {
		t.Errorf("expected cancelled state, got %s", cancelled.State)
	}
	if cancelled.CancelReason != CancelCreatorCancelled {
		t.Errorf("cancel reason = %q, want %q", cancelled.CancelReason, CancelCreatorCancelled)
	}

	// A joined duel can no longer be cancelled.
	second, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))
	if _, err := r.JoinSession(second.ID, "bob", dec("1")); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := r.CancelSession(second.ID, "alice"); errors.GetCode(err) != errors.ErrStateError {
		t.Errorf("expected cancel rejected on active session, got %v", err)
	}
}

func TestDispatchRoutesByKind(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})

	duel, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))
	if _, err := r.JoinSession(duel.ID, "bob", dec("1")); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	nonce := testNonce(7)
	s, err := r.Dispatch(duel.ID, "alice", Action{Kind: ActionCommit, CommitHash: CommitHash(MoveHeads, nonce)})
	if err != nil {
		t.Fatalf("commit dispatch failed: %v", err)
	}
	alice, _ := s.PlayerByIdentity("alice")
	if alice.CommittedHash == nil {
		t.Error("expected commit recorded in snapshot")
	}

	if _, err := r.Dispatch(duel.ID, "alice", Action{Kind: ActionKind("spin")}); errors.GetCode(err) != errors.ErrUnknownAction {
		t.Errorf("expected unknown-action error, got %v", err)
	}

	lottery, _ := r.CreateSession(KindLottery, "p1", dec("1"))
	if _, err := r.Dispatch(lottery.ID, "p2", Action{Kind: ActionEnter, Amount: dec("1")}); err != nil {
		t.Fatalf("enter dispatch failed: %v", err)
	}
	resolved, err := r.Dispatch(lottery.ID, "p1", Action{Kind: ActionDraw})
	if err != nil {
		t.Fatalf("draw dispatch failed: %v", err)
	}
	if resolved.State != StateCompleted {
		t.Errorf("expected completed lottery, got %s", resolved.State)
	}
}

func TestMutationsDoNotLeakIntoSnapshots(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	created, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))

	snapshot, err := r.GetSession(created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	snapshot.Players[0].Contribution = dec("999")
	snapshot.State = StateCompleted

	fresh, _ := r.GetSession(created.ID)
	if !fresh.Players[0].Contribution.Equal(dec("1")) {
		t.Error("mutating a snapshot leaked into the registry")
	}
	if fresh.State != StateWaiting {
		t.Errorf("expected waiting state, got %s", fresh.State)
	}
}

func TestExpireStale(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	now := time.Now()
	r.SetClock(func() time.Time { return now })

	waiting, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))

	active, _ := r.CreateSession(KindSimpleDuel, "carol", dec("1"))
	if _, err := r.JoinSession(active.ID, "dave", dec("1")); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := r.Dispatch(active.ID, "carol", Action{Kind: ActionCommit, CommitHash: CommitHash(MoveHeads, testNonce(1))}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Created later, so its deadline is still in the future at sweep time.
	r.SetClock(func() time.Time { return now.Add(90 * time.Minute) })
	fresh, _ := r.CreateSession(KindSimpleDuel, "erin", dec("1"))

	expired := r.ExpireStale(now.Add(2 * time.Hour))
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired sessions, got %d", len(expired))
	}

	got := make(map[uint64]*Session, len(expired))
	for _, s := range expired {
		got[s.ID] = s
	}
	if s := got[waiting.ID]; s == nil || s.State != StateCancelled || s.CancelReason != CancelTimeout {
		t.Errorf("expected unfilled session cancelled by timeout, got %+v", s)
	}
	if s := got[active.ID]; s == nil || s.Winner != "carol" {
		t.Errorf("expected committed player to win by forfeit, got %+v", s)
	}

	untouched, _ := r.GetSession(fresh.ID)
	if untouched.State != StateWaiting {
		t.Errorf("unexpired session must be left alone, got %s", untouched.State)
	}
}

func TestOnChangeNotifications(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})

	var mu sync.Mutex
	var outcomes []*Outcome
	r.SetOnChange(func(s *Session, outcome *Outcome) {
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	})

	created, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))
	if _, err := r.CancelSession(created.ID, "alice"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(outcomes))
	}
	if outcomes[0] != nil {
		t.Error("create notification should carry no outcome")
	}
	if outcomes[1] == nil || outcomes[1].Kind != SettlementRefund {
		t.Errorf("cancel notification should carry a refund outcome, got %+v", outcomes[1])
	}
}

func TestListAndRemove(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	a, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))
	b, _ := r.CreateSession(KindLottery, "bob", dec("1"))

	waiting := r.ListSessionsByState(StateWaiting)
	if len(waiting) != 2 {
		t.Errorf("expected 2 waiting sessions, got %d", len(waiting))
	}

	if r.Remove(a.ID) {
		t.Error("removing a live session must be refused")
	}
	if _, err := r.CancelSession(a.ID, "alice"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !r.Remove(a.ID) {
		t.Error("removing a terminal session should succeed")
	}
	if _, err := r.GetSession(a.ID); errors.GetCode(err) != errors.ErrSessionNotFound {
		t.Errorf("expected not-found after removal, got %v", err)
	}
	if _, err := r.GetSession(b.ID); err != nil {
		t.Errorf("unrelated session must survive, got %v", err)
	}
}

func TestConcurrentJoinsAdmitExactlyOne(t *testing.T) {
	r := NewRegistry(testRules(), &fixedSource{})
	created, _ := r.CreateSession(KindSimpleDuel, "alice", dec("1"))

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('b' + n))
			_, err := r.JoinSession(created.ID, "player-"+name, dec("1"))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var admitted int
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		switch errors.GetCode(err) {
		case errors.ErrSessionBusy, errors.ErrSessionNotJoinable, errors.ErrSessionFull:
		default:
			t.Errorf("unexpected join error: %v", err)
		}
	}
	if admitted != 1 {
		t.Errorf("expected exactly 1 admitted player, got %d", admitted)
	}

	s, _ := r.GetSession(created.ID)
	if len(s.Players) != 2 {
		t.Errorf("expected 2 players, got %d", len(s.Players))
	}
	if !s.Pot.Equal(dec("2")) {
		t.Errorf("expected pot 2, got %s", s.Pot)
	}
}
