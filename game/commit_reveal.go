package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

// NonceSize is the required length of a commit nonce in bytes.
const NonceSize = 32

// CommitHashSize is the length of a commit hash in bytes.
const CommitHashSize = sha256.Size

// CommitHash computes the canonical commitment for a move:
// SHA256(singleByteMoveCode ‖ 32-byte nonce). The format is bit-exact for
// interop; both sides of the wire must produce identical bytes.
func CommitHash(move Move, nonce []byte) []byte {
	h := sha256.New()
	h.Write([]byte{byte(move)})
	h.Write(nonce)
	return h.Sum(nil)
}

// EncodeCommitHash renders a commit hash for the transport boundary.
func EncodeCommitHash(hash []byte) string {
	return hex.EncodeToString(hash)
}

// DecodeCommitHash accepts a hex- or base64-encoded commit hash and returns
// the raw 32 bytes.
func DecodeCommitHash(s string) ([]byte, error) {
	if raw, err := hex.DecodeString(s); err == nil && len(raw) == CommitHashSize {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == CommitHashSize {
		return raw, nil
	}
	return nil, errors.New(errors.ErrInvalidRequest, "commit hash must be 32 bytes, hex or base64 encoded")
}

// CommitRevealEngine resolves two-player single-move duels (coin flip,
// rock-paper-scissors) through hash-committed moves. All methods mutate the
// session they are handed; the registry passes a private copy.
type CommitRevealEngine struct {
	rng Source
}

// NewCommitRevealEngine creates the engine with the given randomness source.
func NewCommitRevealEngine(rng Source) *CommitRevealEngine {
	return &CommitRevealEngine{rng: rng}
}

// Commit stores a player's move hash. Once both players have committed the
// session moves to Resolving and awaits reveals.
func (e *CommitRevealEngine) Commit(s *Session, playerID string, hash []byte) error {
	if s.Kind != KindSimpleDuel {
		return errors.New(errors.ErrStateError, "commit is only valid for simple duels")
	}
	if s.State != StateActive {
		return errors.New(errors.ErrStateError, "session is not accepting commits")
	}
	if len(hash) != CommitHashSize {
		return errors.New(errors.ErrInvalidRequest, "commit hash must be 32 bytes")
	}

	player, ok := s.PlayerByIdentity(playerID)
	if !ok {
		return errors.New(errors.ErrNotParticipant, "player is not in this session")
	}
	if player.CommittedHash != nil {
		return errors.New(errors.ErrAlreadyCommitted, "move already committed")
	}

	player.CommittedHash = append([]byte(nil), hash...)
	player.IsReady = true

	if e.allCommitted(s) {
		s.advance(StateResolving)
	}
	return nil
}

// Reveal verifies a player's (move, nonce) pair against the stored
// commitment. Once both players have revealed, the winner is determined and
// the session completes.
func (e *CommitRevealEngine) Reveal(s *Session, playerID string, move Move, nonce []byte) (*Outcome, error) {
	if s.Kind != KindSimpleDuel {
		return nil, errors.New(errors.ErrStateError, "reveal is only valid for simple duels")
	}
	if s.State != StateResolving {
		return nil, errors.New(errors.ErrStateError, "session is not accepting reveals")
	}

	player, ok := s.PlayerByIdentity(playerID)
	if !ok {
		return nil, errors.New(errors.ErrNotParticipant, "player is not in this session")
	}
	if player.CommittedHash == nil {
		return nil, errors.New(errors.ErrRevealWithoutCommit, "no commitment to reveal against")
	}
	if player.RevealedMove != MoveNone {
		return nil, errors.New(errors.ErrAlreadyRevealed, "move already revealed")
	}
	if move == MoveNone {
		return nil, errors.New(errors.ErrUnknownMove, "revealed move is not a valid move code")
	}
	if len(nonce) != NonceSize {
		return nil, errors.New(errors.ErrInvalidReveal, "nonce must be 32 bytes")
	}
	if !bytes.Equal(CommitHash(move, nonce), player.CommittedHash) {
		return nil, errors.New(errors.ErrInvalidReveal, "reveal does not match commitment")
	}

	player.RevealedMove = move

	if !e.allRevealed(s) {
		return nil, nil
	}
	return e.resolve(s)
}

// ResolveTimeout forces a duel past its deadline. A player who committed (or
// revealed) beats one who did not; if neither side progressed, the stakes go
// back.
func (e *CommitRevealEngine) ResolveTimeout(s *Session) (*Outcome, error) {
	if len(s.Players) != 2 {
		s.advance(StateCancelled)
		return &Outcome{Kind: SettlementRefund}, nil
	}
	a, b := s.Players[0], s.Players[1]

	progressed := func(p *Player) bool {
		if s.State == StateResolving {
			return p.RevealedMove != MoveNone
		}
		return p.CommittedHash != nil
	}

	switch {
	case progressed(a) && !progressed(b):
		return e.forfeitWin(s, a.Identity)
	case progressed(b) && !progressed(a):
		return e.forfeitWin(s, b.Identity)
	default:
		// Both stalled at the same phase; neither deserves the pot.
		s.advance(StateCancelled)
		return &Outcome{Kind: SettlementRefund}, nil
	}
}

func (e *CommitRevealEngine) forfeitWin(s *Session, winner string) (*Outcome, error) {
	s.Winner = winner
	if !s.advance(StateCompleted) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
	}
	return &Outcome{Kind: SettlementWinnerTakesPot, Winner: winner, Forfeit: true}, nil
}

func (e *CommitRevealEngine) allCommitted(s *Session) bool {
	for _, p := range s.Players {
		if p.CommittedHash == nil {
			return false
		}
	}
	return len(s.Players) == 2
}

func (e *CommitRevealEngine) allRevealed(s *Session) bool {
	for _, p := range s.Players {
		if p.RevealedMove == MoveNone {
			return false
		}
	}
	return len(s.Players) == 2
}

// resolve determines the duel winner from the two revealed moves.
func (e *CommitRevealEngine) resolve(s *Session) (*Outcome, error) {
	a, b := s.Players[0], s.Players[1]

	if isCoinMove(a.RevealedMove) || isCoinMove(b.RevealedMove) {
		return e.resolveCoinFlip(s)
	}

	switch rpsCompare(a.RevealedMove, b.RevealedMove) {
	case 0:
		// Equal moves: full refund, no fee.
		s.IsDraw = true
		if !s.advance(StateCompleted) {
			return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
		}
		return &Outcome{Kind: SettlementRefund}, nil
	case 1:
		return e.win(s, a.Identity)
	default:
		return e.win(s, b.Identity)
	}
}

// resolveCoinFlip draws heads or tails 50/50 from the randomness source. The
// committed guesses only provide anti-cheat symmetry: the flip result is
// compared against each guess, so neither player's choice influences the
// outcome.
func (e *CommitRevealEngine) resolveCoinFlip(s *Session) (*Outcome, error) {
	a, b := s.Players[0], s.Players[1]
	if a.RevealedMove == b.RevealedMove {
		s.IsDraw = true
		if !s.advance(StateCompleted) {
			return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
		}
		return &Outcome{Kind: SettlementRefund}, nil
	}

	r, err := e.rng.Draw(2)
	if err != nil {
		return nil, err
	}
	result := MoveHeads
	if r == 1 {
		result = MoveTails
	}

	winner := a.Identity
	if b.RevealedMove == result {
		winner = b.Identity
	}
	return e.win(s, winner)
}

func (e *CommitRevealEngine) win(s *Session, winner string) (*Outcome, error) {
	s.Winner = winner
	if !s.advance(StateCompleted) {
		return nil, errors.New(errors.ErrStateError, "session state cannot advance to completed")
	}
	return &Outcome{Kind: SettlementWinnerTakesPot, Winner: winner}, nil
}

func isCoinMove(m Move) bool {
	return m == MoveHeads || m == MoveTails
}

// rpsCompare returns 1 if a beats b, -1 if b beats a, 0 on a draw, following
// the standard cycle rock > scissors > paper > rock.
func rpsCompare(a, b Move) int {
	if a == b {
		return 0
	}
	switch {
	case a == MoveRock && b == MoveScissors,
		a == MoveScissors && b == MovePaper,
		a == MovePaper && b == MoveRock:
		return 1
	default:
		return -1
	}
}
