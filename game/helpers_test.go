package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// fixedSource replays a scripted sequence of draws modulo the upper bound.
type fixedSource struct {
	vals []uint64
	i    int
}

func (f *fixedSource) Draw(upper uint64) (uint64, error) {
	if f.i >= len(f.vals) {
		return 0, nil
	}
	v := f.vals[f.i] % upper
	f.i++
	return v, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRules() Rules {
	return Rules{
		MinStake:        dec("0.1"),
		MaxStake:        dec("10"),
		MinLotteryStake: dec("0.05"),
		RaiseCeiling:    dec("10"),
		MaxRounds:       3,
		Timeout:         time.Hour,
	}
}

// newActiveDuel builds a two-player session of the given kind in Active state
// with equal stakes already in the pot.
func newActiveDuel(kind Kind, stake decimal.Decimal) *Session {
	now := time.Now()
	return &Session{
		ID:      1,
		Kind:    kind,
		State:   StateActive,
		Creator: "alice",
		Players: []*Player{
			{Identity: "alice", InitialStake: stake, Contribution: stake},
			{Identity: "bob", InitialStake: stake, Contribution: stake},
		},
		Pot:       stake.Add(stake),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		MaxRounds: 3,
	}
}

func newLotterySession() *Session {
	now := time.Now()
	return &Session{
		ID:        2,
		Kind:      KindLottery,
		State:     StateWaiting,
		Creator:   "p1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		Pot:       decimal.Zero,
	}
}
