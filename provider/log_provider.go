package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simlowker/solduel-gaming-platform/config"
	"github.com/Simlowker/solduel-gaming-platform/game"
	"github.com/Simlowker/solduel-gaming-platform/httpclient"
	"github.com/Simlowker/solduel-gaming-platform/pkg/providers"
)

// LogProvider ships settlement records to the history service over HTTP.
type LogProvider struct {
	client *httpclient.Client
	logger zerolog.Logger
}

// NewLogProvider creates a new log provider
func NewLogProvider(cfg *config.Config, logger zerolog.Logger) *LogProvider {
	timeout := cfg.ExternalServices.LogService.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &LogProvider{
		client: httpclient.New(httpclient.Config{
			BaseURL:    cfg.ExternalServices.LogService.BaseURL,
			Timeout:    timeout,
			Logger:     logger,
			MaxRetries: 2,
		}),
		logger: logger.With().Str("component", "log_provider").Logger(),
	}
}

type settlementLogEntry struct {
	SessionID  uint64              `json:"sessionId"`
	Kind       game.Kind           `json:"kind"`
	State      game.State          `json:"state"`
	Pot        string              `json:"pot"`
	Winner     string              `json:"winner,omitempty"`
	Fee        string              `json:"fee"`
	Refund     bool                `json:"refund"`
	Transfers  []game.Transfer     `json:"transfers"`
	Settlement game.SettlementKind `json:"settlementKind"`
	Timestamp  time.Time           `json:"timestamp"`
}

// LogSettlement records one settled session with the history service
func (p *LogProvider) LogSettlement(ctx context.Context, s *game.Session, st *game.Settlement) (string, error) {
	entry := settlementLogEntry{
		SessionID: s.ID,
		Kind:      s.Kind,
		State:     s.State,
		Pot:       s.Pot.String(),
		Winner:    st.Winner,
		Fee:       st.Fee.String(),
		Refund:    st.Refund,
		Transfers:  st.Transfers,
		Settlement: st.Kind,
		Timestamp:  st.CreatedAt,
	}

	var result struct {
		Data struct {
			RecordID string `json:"recordId"`
		} `json:"data"`
	}
	if err := p.client.PostJSON(ctx, "/history/settlements", entry, nil, &result); err != nil {
		p.logger.Error().Err(err).Uint64("session_id", s.ID).Msg("failed to log settlement")
		return "", err
	}
	return result.Data.RecordID, nil
}

// GetSessionHistory queries archived sessions for a player
func (p *LogProvider) GetSessionHistory(ctx context.Context, query *providers.SessionHistoryQuery) (*providers.SessionHistoryResponse, error) {
	path := fmt.Sprintf("/history/sessions?player_id=%s&kind=%s&page=%d&limit=%d",
		query.PlayerID, query.Kind, query.Page, query.Limit)

	var result struct {
		Data providers.SessionHistoryResponse `json:"data"`
	}
	if err := p.client.GetJSON(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}
