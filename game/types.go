package game

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Kind identifies the wager protocol a session runs.
type Kind string

const (
	KindSimpleDuel    Kind = "simple_duel"    // commit-reveal coin flip / RPS
	KindStrategicDuel Kind = "strategic_duel" // multi-round proportional-stake betting
	KindLottery       Kind = "lottery"        // weighted pool draw
)

// Valid reports whether the kind is one of the supported protocols.
func (k Kind) Valid() bool {
	return k == KindSimpleDuel || k == KindStrategicDuel || k == KindLottery
}

// RequiredPlayers returns the player count that moves a session out of
// Waiting. Duels need both seats filled; a lottery activates as soon as a
// second participant buys in.
func (k Kind) RequiredPlayers() int {
	return 2
}

// MaxPlayers returns the upper bound on participants for the kind.
func (k Kind) MaxPlayers() int {
	if k == KindLottery {
		return 100
	}
	return 2
}

// State is the lifecycle stage of a session. Transitions are monotonic.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateResolving State = "resolving"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// rank orders states so monotonicity can be asserted. Completed and Cancelled
// are both terminal.
func (s State) rank() int {
	switch s {
	case StateWaiting:
		return 0
	case StateActive:
		return 1
	case StateResolving:
		return 2
	case StateCompleted, StateCancelled:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Move is a single-byte move code. The byte values are part of the commit
// hash format and must not be reordered.
type Move byte

const (
	MoveNone     Move = 0
	MoveRock     Move = 1
	MovePaper    Move = 2
	MoveScissors Move = 3
	MoveHeads    Move = 4
	MoveTails    Move = 5
)

var moveNames = map[Move]string{
	MoveNone:     "none",
	MoveRock:     "rock",
	MovePaper:    "paper",
	MoveScissors: "scissors",
	MoveHeads:    "heads",
	MoveTails:    "tails",
}

func (m Move) String() string {
	if name, ok := moveNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMove converts a wire-format move name to its byte code.
func ParseMove(name string) (Move, bool) {
	for m, n := range moveNames {
		if n == name && m != MoveNone {
			return m, true
		}
	}
	return MoveNone, false
}

// ActionKind is a caller-submitted action routed by the registry.
type ActionKind string

const (
	ActionCommit ActionKind = "commit"
	ActionReveal ActionKind = "reveal"
	ActionCheck  ActionKind = "check"
	ActionCall   ActionKind = "call"
	ActionRaise  ActionKind = "raise"
	ActionFold   ActionKind = "fold"
	ActionEnter  ActionKind = "enter"
	ActionDraw   ActionKind = "draw"
)

// Action carries one caller action into Dispatch. Only the fields relevant
// to the Kind are read.
type Action struct {
	Kind       ActionKind      `json:"kind"`
	CommitHash []byte          `json:"commitHash,omitempty"`
	Move       Move            `json:"move,omitempty"`
	Nonce      []byte          `json:"nonce,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
}

// BettingAction is a recorded betting-round action.
type BettingAction struct {
	Kind   ActionKind      `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// Player is one participant inside a session.
type Player struct {
	Identity      string          `json:"identity"`
	InitialStake  decimal.Decimal `json:"initialStake"`
	Contribution  decimal.Decimal `json:"contribution"`
	CommittedHash []byte          `json:"committedHash,omitempty"`
	RevealedMove  Move            `json:"revealedMove,omitempty"`
	HasFolded     bool            `json:"hasFolded"`
	LastAction    *BettingAction  `json:"lastAction,omitempty"`
	IsReady       bool            `json:"isReady"`
}

// clone deep-copies the player.
func (p *Player) clone() *Player {
	cp := *p
	if p.CommittedHash != nil {
		cp.CommittedHash = append([]byte(nil), p.CommittedHash...)
	}
	if p.LastAction != nil {
		la := *p.LastAction
		cp.LastAction = &la
	}
	return &cp
}

// BettingRound records one round of a strategic duel.
type BettingRound struct {
	Index     int                      `json:"index"`
	Actions   map[string]BettingAction `json:"actions"`
	Completed bool                     `json:"completed"`
}

func (r *BettingRound) clone() *BettingRound {
	cp := &BettingRound{Index: r.Index, Completed: r.Completed, Actions: make(map[string]BettingAction, len(r.Actions))}
	for k, v := range r.Actions {
		cp.Actions[k] = v
	}
	return cp
}

// Session is one wager from creation to settlement. It is only ever mutated
// by engine transition functions under the registry's per-session lock;
// callers see immutable snapshots.
type Session struct {
	ID         uint64          `json:"id"`
	Kind       Kind            `json:"kind"`
	State      State           `json:"state"`
	Creator    string          `json:"creator"`
	Players    []*Player       `json:"players"`
	Pot        decimal.Decimal `json:"pot"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	RoundIndex int             `json:"roundIndex"`
	MaxRounds  int             `json:"maxRounds"`
	Rounds     []*BettingRound `json:"rounds,omitempty"`
	Winner     string          `json:"winner,omitempty"`
	IsDraw     bool            `json:"isDraw,omitempty"`

	// CancelReason is set only on cancelled sessions.
	CancelReason CancelReason `json:"cancelReason,omitempty"`
}

// Clone deep-copies the session for copy-on-write mutation and snapshot reads.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Players = lo.Map(s.Players, func(p *Player, _ int) *Player { return p.clone() })
	cp.Rounds = lo.Map(s.Rounds, func(r *BettingRound, _ int) *BettingRound { return r.clone() })
	return &cp
}

// PlayerByIdentity returns the session player with the given identity.
func (s *Session) PlayerByIdentity(identity string) (*Player, bool) {
	return lo.Find(s.Players, func(p *Player) bool { return p.Identity == identity })
}

// ActivePlayers returns the players that have not folded.
func (s *Session) ActivePlayers() []*Player {
	return lo.Filter(s.Players, func(p *Player, _ int) bool { return !p.HasFolded })
}

// Opponent returns the other player in a two-player session.
func (s *Session) Opponent(identity string) (*Player, bool) {
	return lo.Find(s.Players, func(p *Player) bool { return p.Identity != identity })
}

// ContributionSum adds up every player's contribution.
func (s *Session) ContributionSum() decimal.Decimal {
	return lo.Reduce(s.Players, func(sum decimal.Decimal, p *Player, _ int) decimal.Decimal {
		return sum.Add(p.Contribution)
	}, decimal.Zero)
}

// WinProbabilities returns each active player's proportional share of the
// total contribution. The shares sum to 1 up to decimal division precision.
func (s *Session) WinProbabilities() map[string]decimal.Decimal {
	active := s.ActivePlayers()
	total := lo.Reduce(active, func(sum decimal.Decimal, p *Player, _ int) decimal.Decimal {
		return sum.Add(p.Contribution)
	}, decimal.Zero)
	probs := make(map[string]decimal.Decimal, len(active))
	if total.IsZero() {
		return probs
	}
	for _, p := range active {
		probs[p.Identity] = p.Contribution.Div(total)
	}
	return probs
}

// CurrentRound returns the in-progress betting round, if any.
func (s *Session) CurrentRound() *BettingRound {
	if len(s.Rounds) == 0 {
		return nil
	}
	last := s.Rounds[len(s.Rounds)-1]
	if last.Completed {
		return nil
	}
	return last
}

// advance moves the session to a later state. Backward transitions indicate
// an engine bug and are refused.
func (s *Session) advance(next State) bool {
	if next.rank() < s.State.rank() {
		return false
	}
	s.State = next
	return true
}

// CancelReason records why a session was cancelled.
type CancelReason string

const (
	CancelCreatorCancelled    CancelReason = "creator_cancelled"
	CancelTimeout             CancelReason = "timeout"
	CancelInsufficientPlayers CancelReason = "insufficient_players"
)

// SettlementKind classifies how a terminal session's pot moves.
type SettlementKind string

const (
	SettlementWinnerTakesPot    SettlementKind = "winner_takes_pot"
	SettlementRefund            SettlementKind = "refund"
	SettlementPartialRefundFold SettlementKind = "partial_refund_on_fold"
)

// Outcome is an engine's verdict on a terminal session. The payout
// calculator turns it into transfer instructions.
type Outcome struct {
	Kind    SettlementKind
	Winner  string // empty for refunds
	Folder  string // set when the session ended by fold
	Forfeit bool   // true when the loss was forced by timeout
}

// Transfer is a single computed (recipient, amount) instruction. It is never
// executed by the core; the ledger adapter does that exactly once.
type Transfer struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// Settlement groups the transfers for one terminal session. SessionID doubles
// as the idempotency key for the ledger adapter.
type Settlement struct {
	SessionID uint64          `json:"sessionId"`
	Kind      SettlementKind  `json:"kind"`
	Winner    string          `json:"winner,omitempty"`
	Transfers []Transfer      `json:"transfers"`
	Fee       decimal.Decimal `json:"fee"`
	Treasury  string          `json:"treasury,omitempty"`
	Refund    bool            `json:"refund"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Total sums all transfer amounts plus the fee; it must equal the pot.
func (st *Settlement) Total() decimal.Decimal {
	total := st.Fee
	for _, t := range st.Transfers {
		total = total.Add(t.Amount)
	}
	return total
}
