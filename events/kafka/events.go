package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/game"
)

// Event types published on the session topic.
const (
	EventSessionCreated   = "session_created"
	EventPlayerJoined     = "player_joined"
	EventMoveCommitted    = "move_committed"
	EventMoveRevealed     = "move_revealed"
	EventBetPlaced        = "bet_placed"
	EventLotteryEntered   = "lottery_entered"
	EventSessionResolved  = "session_resolved"
	EventSessionCancelled = "session_cancelled"
	EventPlayerTimedOut   = "player_timed_out"
	EventFeeCollected     = "fee_collected"
)

// SessionEvent is the wire shape of every session lifecycle event. Fields
// that do not apply to a given type stay empty.
type SessionEvent struct {
	Type      string              `json:"type"`
	SessionID uint64              `json:"sessionId"`
	Kind      game.Kind           `json:"kind"`
	State     game.State          `json:"state"`
	PlayerID  string              `json:"playerId,omitempty"`
	Amount    decimal.Decimal     `json:"amount,omitempty"`
	Pot       decimal.Decimal     `json:"pot"`
	Winner    string              `json:"winner,omitempty"`
	Outcome   game.SettlementKind `json:"outcome,omitempty"`
	Fee       decimal.Decimal     `json:"fee,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewSessionEvent builds the event envelope shared by all publishers.
func NewSessionEvent(eventType string, s *game.Session) SessionEvent {
	return SessionEvent{
		Type:      eventType,
		SessionID: s.ID,
		Kind:      s.Kind,
		State:     s.State,
		Pot:       s.Pot,
		Winner:    s.Winner,
		Timestamp: time.Now(),
	}
}
