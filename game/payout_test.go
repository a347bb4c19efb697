package game

import (
	"testing"

	"github.com/shopspring/decimal"
)

func settledDuel(stake string, state State) *Session {
	s := newActiveDuel(KindStrategicDuel, dec(stake))
	s.State = state
	return s
}

func assertTotalEqualsPot(t *testing.T, s *Session, st *Settlement) {
	t.Helper()
	if !st.Total().Equal(s.Pot) {
		t.Errorf("settlement total %s does not equal pot %s", st.Total(), s.Pot)
	}
}

func TestSettleWinnerTakesPot(t *testing.T) {
	c := NewPayoutCalculator(200, "treasury", false, false)
	s := settledDuel("1", StateCompleted)
	s.Winner = "alice"

	st, err := c.Settle(s, &Outcome{Kind: SettlementWinnerTakesPot, Winner: "alice"})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// 200 bps of a 2.0 pot is 0.04.
	if !st.Fee.Equal(dec("0.04")) {
		t.Errorf("expected fee 0.04, got %s", st.Fee)
	}
	if len(st.Transfers) != 1 {
		t.Fatalf("expected a single transfer, got %d", len(st.Transfers))
	}
	if st.Transfers[0].Recipient != "alice" || !st.Transfers[0].Amount.Equal(dec("1.96")) {
		t.Errorf("expected alice to receive 1.96, got %+v", st.Transfers[0])
	}
	if st.SessionID != s.ID {
		t.Errorf("settlement must carry the session id, got %d", st.SessionID)
	}
	assertTotalEqualsPot(t, s, st)
}

func TestSettleRefundIsFeeFree(t *testing.T) {
	c := NewPayoutCalculator(200, "treasury", false, false)
	s := settledDuel("1", StateCancelled)

	st, err := c.Settle(s, &Outcome{Kind: SettlementRefund})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !st.Fee.IsZero() {
		t.Errorf("refunds must be fee-free, got fee %s", st.Fee)
	}
	if len(st.Transfers) != 2 {
		t.Fatalf("expected each player refunded, got %d transfers", len(st.Transfers))
	}
	for _, tr := range st.Transfers {
		if !tr.Amount.Equal(dec("1")) {
			t.Errorf("expected each refund of 1, got %s for %s", tr.Amount, tr.Recipient)
		}
	}
	assertTotalEqualsPot(t, s, st)
}

func TestSettleForfeitFeePolicy(t *testing.T) {
	tests := []struct {
		name         string
		feeOnForfeit bool
		wantFee      string
	}{
		{name: "forfeits are fee-free by default", feeOnForfeit: false, wantFee: "0"},
		{name: "forfeit fee when enabled", feeOnForfeit: true, wantFee: "0.04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPayoutCalculator(200, "treasury", tt.feeOnForfeit, false)
			s := settledDuel("1", StateCompleted)
			s.Winner = "alice"

			st, err := c.Settle(s, &Outcome{Kind: SettlementWinnerTakesPot, Winner: "alice", Forfeit: true})
			if err != nil {
				t.Fatalf("settle failed: %v", err)
			}
			if !st.Fee.Equal(dec(tt.wantFee)) {
				t.Errorf("expected fee %s, got %s", tt.wantFee, st.Fee)
			}
			assertTotalEqualsPot(t, s, st)
		})
	}
}

func TestSettleFoldWithRaiseRefund(t *testing.T) {
	c := NewPayoutCalculator(200, "treasury", false, true)
	s := settledDuel("1", StateCompleted)
	s.Winner = "alice"

	// Bob raised to 1.5 before folding; the 0.5 above his initial stake
	// comes back fee-free.
	bob, _ := s.PlayerByIdentity("bob")
	bob.Contribution = dec("1.5")
	bob.HasFolded = true
	s.Pot = dec("2.5")

	st, err := c.Settle(s, &Outcome{Kind: SettlementWinnerTakesPot, Winner: "alice", Folder: "bob"})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if st.Kind != SettlementPartialRefundFold {
		t.Errorf("expected partial-refund settlement, got %s", st.Kind)
	}

	// Contested pot is 2.0; the fee applies to it alone.
	if !st.Fee.Equal(dec("0.04")) {
		t.Errorf("expected fee 0.04 on the contested pot, got %s", st.Fee)
	}

	var aliceAmount, bobAmount decimal.Decimal
	for _, tr := range st.Transfers {
		switch tr.Recipient {
		case "alice":
			aliceAmount = tr.Amount
		case "bob":
			bobAmount = tr.Amount
		}
	}
	if !aliceAmount.Equal(dec("1.96")) {
		t.Errorf("expected alice to receive 1.96, got %s", aliceAmount)
	}
	if !bobAmount.Equal(dec("0.5")) {
		t.Errorf("expected bob refunded 0.5, got %s", bobAmount)
	}
	assertTotalEqualsPot(t, s, st)
}

func TestSettleRejectsLiveSession(t *testing.T) {
	c := NewPayoutCalculator(200, "treasury", false, false)
	s := settledDuel("1", StateActive)

	if _, err := c.Settle(s, &Outcome{Kind: SettlementWinnerTakesPot, Winner: "alice"}); err == nil {
		t.Error("expected error settling a live session")
	}
}
