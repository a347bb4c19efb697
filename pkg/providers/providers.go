package providers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/game"
)

// LedgerProvider moves real funds. Escrow pulls a stake into custody when a
// player enters a session; Disburse and Refund push funds back out when the
// session settles. All three must be safe to retry with the same reference.
type LedgerProvider interface {
	GetBalance(ctx context.Context, playerID string) (decimal.Decimal, error)
	Escrow(ctx context.Context, playerID, reference string, amount decimal.Decimal) error
	Disburse(ctx context.Context, playerID, reference string, amount decimal.Decimal) error
	Refund(ctx context.Context, playerID, reference string, amount decimal.Decimal) error
}

// ArchiveProvider persists terminal sessions and their settlements, and
// tracks settlements whose ledger transfers have not yet succeeded.
type ArchiveProvider interface {
	SaveSession(ctx context.Context, s *game.Session) error
	SaveSettlement(ctx context.Context, st *game.Settlement) error
	GetSettlement(ctx context.Context, sessionID uint64) (*game.Settlement, error)
	// MarkPending enqueues a settlement for retry; TakePending drains the
	// queue for the sweep loop.
	MarkPending(ctx context.Context, sessionID uint64) error
	TakePending(ctx context.Context, limit int) ([]uint64, error)
}

// SessionHistoryQuery filters the archived session feed for one player.
type SessionHistoryQuery struct {
	PlayerID string    `json:"playerId"`
	Kind     game.Kind `json:"kind,omitempty"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// SessionRecord is one archived session as the history service returns it.
type SessionRecord struct {
	SessionID uint64          `json:"sessionId"`
	Kind      game.Kind       `json:"kind"`
	State     game.State      `json:"state"`
	Pot       decimal.Decimal `json:"pot"`
	Winner    string          `json:"winner,omitempty"`
	Fee       decimal.Decimal `json:"fee"`
	EndedAt   time.Time       `json:"endedAt"`
}

// SessionHistoryResponse pages archived sessions.
type SessionHistoryResponse struct {
	Total int             `json:"total"`
	Items []SessionRecord `json:"items"`
}

// LogProvider ships settlement records to the external history service.
type LogProvider interface {
	LogSettlement(ctx context.Context, s *game.Session, st *game.Settlement) (recordID string, err error)
	GetSessionHistory(ctx context.Context, query *SessionHistoryQuery) (*SessionHistoryResponse, error)
}
