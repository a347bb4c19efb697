package server

import (
	"github.com/Simlowker/solduel-gaming-platform/pkg/providers"
)

// LedgerProvider is an alias for providers.LedgerProvider
type LedgerProvider = providers.LedgerProvider

// ArchiveProvider is an alias for providers.ArchiveProvider
type ArchiveProvider = providers.ArchiveProvider

// LogProvider is an alias for providers.LogProvider
type LogProvider = providers.LogProvider

// SessionHistoryQuery is an alias for providers.SessionHistoryQuery
type SessionHistoryQuery = providers.SessionHistoryQuery

// SessionHistoryResponse is an alias for providers.SessionHistoryResponse
type SessionHistoryResponse = providers.SessionHistoryResponse
