package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simlowker/solduel-gaming-platform/db/redis"
	"github.com/Simlowker/solduel-gaming-platform/errors"
	"github.com/Simlowker/solduel-gaming-platform/game"
)

const (
	sessionKeyPrefix    = "session:archive:"
	settlementKeyPrefix = "settlement:"
	pendingSetKey       = "settlement:pending"

	// Archived records outlive any dispute window comfortably.
	archiveTTL = 90 * 24 * time.Hour
)

// ArchiveProvider persists terminal sessions and settlements in Redis and
// keeps the retry queue for settlements whose ledger transfers failed.
type ArchiveProvider struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewArchiveProvider creates a new archive provider
func NewArchiveProvider(redisClient *redis.Client, logger zerolog.Logger) *ArchiveProvider {
	return &ArchiveProvider{
		redis:  redisClient,
		logger: logger.With().Str("component", "archive_provider").Logger(),
	}
}

// SaveSession archives a terminal session snapshot
func (p *ArchiveProvider) SaveSession(ctx context.Context, s *game.Session) error {
	key := sessionKeyPrefix + strconv.FormatUint(s.ID, 10)
	if err := p.redis.SetJSON(ctx, key, s, archiveTTL); err != nil {
		return errors.Wrap(err, errors.ErrArchiveError, "failed to archive session")
	}
	return nil
}

// SaveSettlement archives a settlement record
func (p *ArchiveProvider) SaveSettlement(ctx context.Context, st *game.Settlement) error {
	key := settlementKeyPrefix + strconv.FormatUint(st.SessionID, 10)
	if err := p.redis.SetJSON(ctx, key, st, archiveTTL); err != nil {
		return errors.Wrap(err, errors.ErrArchiveError, "failed to archive settlement")
	}
	return nil
}

// GetSettlement loads the archived settlement for a session
func (p *ArchiveProvider) GetSettlement(ctx context.Context, sessionID uint64) (*game.Settlement, error) {
	key := settlementKeyPrefix + strconv.FormatUint(sessionID, 10)
	var st game.Settlement
	if err := p.redis.GetJSON(ctx, key, &st); err != nil {
		if err == redis.ErrNotFound {
			return nil, errors.New(errors.ErrSessionNotFound, "settlement not found")
		}
		return nil, errors.Wrap(err, errors.ErrArchiveError, "failed to load settlement")
	}
	return &st, nil
}

// MarkPending enqueues a settlement whose transfers must be retried
func (p *ArchiveProvider) MarkPending(ctx context.Context, sessionID uint64) error {
	if err := p.redis.SAdd(ctx, pendingSetKey, strconv.FormatUint(sessionID, 10)); err != nil {
		return errors.Wrap(err, errors.ErrArchiveError, "failed to mark settlement pending")
	}
	return nil
}

// TakePending drains up to limit pending settlement ids for the sweep loop.
// Popped ids that fail again are re-marked by the caller.
func (p *ArchiveProvider) TakePending(ctx context.Context, limit int) ([]uint64, error) {
	vals, err := p.redis.SPopN(ctx, pendingSetKey, int64(limit))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrArchiveError, "failed to take pending settlements")
	}

	ids := make([]uint64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			p.logger.Warn().Str("value", v).Msg("dropping malformed pending settlement id")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SettlementReference builds the idempotency reference for one transfer leg.
func SettlementReference(sessionID uint64, recipient string) string {
	return fmt.Sprintf("settle:%d:%s", sessionID, recipient)
}
