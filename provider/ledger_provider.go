package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Simlowker/solduel-gaming-platform/config"
)

// LedgerProvider implements providers.LedgerProvider against the ledger
// service HTTP API. Every transfer carries a reference string the service
// deduplicates on, so retries of the same settlement never double-pay.
type LedgerProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewLedgerProvider creates a new ledger provider
func NewLedgerProvider(cfg *config.Config, logger zerolog.Logger) *LedgerProvider {
	timeout := cfg.ExternalServices.LedgerService.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &LedgerProvider{
		baseURL: cfg.ExternalServices.LedgerService.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				MaxConnsPerHost:     100,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		logger: logger.With().Str("component", "ledger_provider").Logger(),
	}
}

// GetBalance retrieves a player's balance from the ledger service
func (p *LedgerProvider) GetBalance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/ledger/balance?player_id=%s", p.baseURL, playerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("ledger service returned status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	return decimal.NewFromString(result.Data.Balance)
}

// Escrow pulls a player's stake into custody
func (p *LedgerProvider) Escrow(ctx context.Context, playerID, reference string, amount decimal.Decimal) error {
	return p.transfer(ctx, "/ledger/escrow", playerID, reference, amount)
}

// Disburse pays out to a player from custody
func (p *LedgerProvider) Disburse(ctx context.Context, playerID, reference string, amount decimal.Decimal) error {
	return p.transfer(ctx, "/ledger/disburse", playerID, reference, amount)
}

// Refund returns an escrowed stake to a player
func (p *LedgerProvider) Refund(ctx context.Context, playerID, reference string, amount decimal.Decimal) error {
	return p.transfer(ctx, "/ledger/refund", playerID, reference, amount)
}

func (p *LedgerProvider) transfer(ctx context.Context, path, playerID, reference string, amount decimal.Decimal) error {
	url := p.baseURL + path

	body, _ := json.Marshal(map[string]interface{}{
		"player_id": playerID,
		"reference": reference,
		// Decimal strings keep the service from rounding stake amounts.
		"amount": amount.String(),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error().
			Str("path", path).
			Str("player_id", playerID).
			Str("reference", reference).
			Int("status", resp.StatusCode).
			Msg("ledger transfer rejected")
		return fmt.Errorf("%s failed with status %d", path, resp.StatusCode)
	}

	return nil
}
