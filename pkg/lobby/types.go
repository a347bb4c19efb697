package lobby

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/game"
)

// Update is one lobby feed item: the public view of a session after a
// lifecycle change. Sensitive per-player data (commit hashes, nonces) never
// leaves the game package, so this summary is safe to broadcast.
type Update struct {
	SessionID  uint64                     `json:"sessionId"`
	Kind       game.Kind                  `json:"kind"`
	State      game.State                 `json:"state"`
	Creator    string                     `json:"creator"`
	Players    int                        `json:"players"`
	Pot        decimal.Decimal            `json:"pot"`
	RoundIndex int                        `json:"roundIndex"`
	Winner     string                     `json:"winner,omitempty"`
	Odds       map[string]decimal.Decimal `json:"odds,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// NewUpdate summarizes a session snapshot for the feed.
func NewUpdate(s *game.Session) Update {
	return Update{
		SessionID:  s.ID,
		Kind:       s.Kind,
		State:      s.State,
		Creator:    s.Creator,
		Players:    len(s.Players),
		Pot:        s.Pot,
		RoundIndex: s.RoundIndex,
		Winner:     s.Winner,
		Odds:       s.WinProbabilities(),
		Timestamp:  time.Now(),
	}
}

// ServiceConfig configures the lobby service.
type ServiceConfig struct {
	// BroadcastInterval controls how often buffered updates are flushed to listeners.
	BroadcastInterval time.Duration

	// Logger is optional; if zero value, a no-op logger is used.
	Logger zerolog.Logger
}
