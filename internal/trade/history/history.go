// Package history records completed trade outcomes for observability.
package history

import (
	"context"
	"time"
)

// Outcome is the terminal state a trade reached.
type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeExpired  Outcome = "EXPIRED"
)

// Record is one append-only per-user trade log entry. CardGiven and
// CardReceived are empty for trades that never swapped.
type Record struct {
	UserID       string
	Counterparty string
	CardGiven    string
	CardReceived string
	Outcome      Outcome
	Timestamp    time.Time
}

// Store persists trade history records.
type Store interface {
	AppendTradeRecord(ctx context.Context, record Record) error
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}
