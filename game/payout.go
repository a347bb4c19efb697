package game

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

const feeDenominator = 10000

// PayoutCalculator turns a terminal session plus its outcome into a
// Settlement. It is pure arithmetic: no ledger calls happen here.
type PayoutCalculator struct {
	feeBps       int64
	treasury     string
	feeOnForfeit bool
	// foldRefundsRaises switches fold settlement to the partial-refund
	// variant: the folder gets their raises above the initial stake back
	// fee-free and the winner takes the remainder.
	foldRefundsRaises bool

	now func() time.Time
}

func NewPayoutCalculator(feeBps int64, treasury string, feeOnForfeit, foldRefundsRaises bool) *PayoutCalculator {
	return &PayoutCalculator{
		feeBps:            feeBps,
		treasury:          treasury,
		feeOnForfeit:      feeOnForfeit,
		foldRefundsRaises: foldRefundsRaises,
		now:               time.Now,
	}
}

// Settle computes the transfers for a terminal session. The returned
// Settlement's Total always equals the session pot.
func (c *PayoutCalculator) Settle(s *Session, outcome *Outcome) (*Settlement, error) {
	if !s.State.Terminal() {
		return nil, errors.New(errors.ErrStateError, "cannot settle a session that is still in play")
	}

	settlement := &Settlement{
		SessionID: s.ID,
		Kind:      outcome.Kind,
		Treasury:  c.treasury,
		CreatedAt: c.now(),
	}

	switch outcome.Kind {
	case SettlementRefund:
		settlement.Refund = true
		for _, p := range s.Players {
			if p.Contribution.IsPositive() {
				settlement.Transfers = append(settlement.Transfers, Transfer{
					Recipient: p.Identity,
					Amount:    p.Contribution,
				})
			}
		}
		return settlement, nil

	case SettlementWinnerTakesPot:
		winner, ok := s.PlayerByIdentity(outcome.Winner)
		if !ok {
			return nil, errors.New(errors.ErrStateError, "settlement winner is not a participant")
		}
		fee := decimal.Zero
		if c.feeBps > 0 && (c.feeOnForfeit || !outcome.Forfeit) {
			fee = s.Pot.Mul(decimal.NewFromInt(c.feeBps)).Div(decimal.NewFromInt(feeDenominator))
		}
		if outcome.Folder != "" && c.foldRefundsRaises {
			return c.settleFoldWithRefund(s, outcome, settlement, winner)
		}
		settlement.Winner = winner.Identity
		settlement.Fee = fee
		settlement.Transfers = []Transfer{{
			Recipient: winner.Identity,
			Amount:    s.Pot.Sub(fee),
		}}
		return settlement, nil

	default:
		return nil, errors.New(errors.ErrStateError, "unknown settlement kind")
	}
}

// settleFoldWithRefund returns the folder's raises above their initial stake
// fee-free; the fee applies only to the remaining contested pot.
func (c *PayoutCalculator) settleFoldWithRefund(s *Session, outcome *Outcome, settlement *Settlement, winner *Player) (*Settlement, error) {
	folder, ok := s.PlayerByIdentity(outcome.Folder)
	if !ok {
		return nil, errors.New(errors.ErrStateError, "settlement folder is not a participant")
	}

	refund := folder.Contribution.Sub(folder.InitialStake)
	if refund.IsNegative() {
		refund = decimal.Zero
	}

	contested := s.Pot.Sub(refund)
	fee := decimal.Zero
	if c.feeBps > 0 && (c.feeOnForfeit || !outcome.Forfeit) {
		fee = contested.Mul(decimal.NewFromInt(c.feeBps)).Div(decimal.NewFromInt(feeDenominator))
	}

	settlement.Kind = SettlementPartialRefundFold
	settlement.Winner = winner.Identity
	settlement.Fee = fee
	settlement.Transfers = []Transfer{{
		Recipient: winner.Identity,
		Amount:    contested.Sub(fee),
	}}
	if refund.IsPositive() {
		settlement.Transfers = append(settlement.Transfers, Transfer{
			Recipient: folder.Identity,
			Amount:    refund,
		})
	}
	return settlement, nil
}
