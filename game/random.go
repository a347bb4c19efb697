package game

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/errors"
)

// Source supplies uniformly distributed draws for tie-breaks and weighted
// winner selection. Production implementations must be unpredictable to every
// participant at decision time and verifiable after the fact (VRF or delayed
// public beacon); a local PRNG is acceptable only for tests and development.
type Source interface {
	// Draw returns an integer uniformly distributed in [0, upper).
	Draw(upper uint64) (uint64, error)
}

// cryptoSource draws from crypto/rand. It is unpredictable to both parties
// but not publicly verifiable; swap in a VRF-backed Source for settings where
// the operator itself must be distrusted.
type cryptoSource struct{}

// NewCryptoSource returns the default production randomness source.
func NewCryptoSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Draw(upper uint64) (uint64, error) {
	if upper == 0 {
		return 0, errors.New(errors.ErrRandomnessError, "draw upper bound must be positive")
	}
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(upper))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrRandomnessError, "randomness source failed")
	}
	return n.Uint64(), nil
}

// seededSource is a deterministic source for tests and local development.
type seededSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeededSource returns a deterministic Source. Never use it in production:
// either party could predict its output.
func NewSeededSource(seed int64) Source {
	return &seededSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (s *seededSource) Draw(upper uint64) (uint64, error) {
	if upper == 0 {
		return 0, errors.New(errors.ErrRandomnessError, "draw upper bound must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(s.rng.Int63n(int64(upper))), nil
}

// weightScale converts decimal stake amounts to integer draw units. Eight
// fractional digits cover the smallest stake increments handled here.
const weightScale = 8

// drawWeightedIndex selects an index with probability proportional to its
// weight: it builds a cumulative prefix-sum array over the scaled weights,
// draws r uniformly from [0, total), and binary-searches for the first prefix
// exceeding r.
func drawWeightedIndex(src Source, weights []decimal.Decimal) (int, error) {
	if len(weights) == 0 {
		return 0, errors.New(errors.ErrNoParticipants, "no weights to draw from")
	}

	prefix := make([]uint64, len(weights))
	var total uint64
	for i, w := range weights {
		units := w.Shift(weightScale).IntPart()
		if units < 0 {
			return 0, errors.New(errors.ErrInvalidAmount, "negative draw weight")
		}
		total += uint64(units)
		prefix[i] = total
	}
	if total == 0 {
		return 0, errors.New(errors.ErrNoParticipants, "all draw weights are zero")
	}

	r, err := src.Draw(total)
	if err != nil {
		return 0, err
	}

	idx := sort.Search(len(prefix), func(i int) bool { return prefix[i] > r })
	return idx, nil
}
