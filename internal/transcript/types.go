package transcript

import (
	"context"
	"time"
)

// Record is one archived conversation turn.
type Record struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is an append-mostly archive of chat turns. It never feeds the live
// conversation window; it exists for audit and offline analysis.
type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	Recent(ctx context.Context, clientID string, limit int) ([]Record, error)
	Close() error
}

const defaultRecentLimit = 10
