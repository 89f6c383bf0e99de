package store

import (
	"context"
	"time"
)

// Operation kinds.
const (
	KindReceive = "receive"
	KindSend    = "send"
)

// Operation states.
const (
	StatePending = "pending"
	StateSettled = "settled"
	StateExpired = "expired"
)

// Operation is one entry in the wallet's operation log, keyed by payment hash.
type Operation struct {
	PaymentHash string
	Kind        string
	State       string
	AmountMsat  int64
	Description string
	Invoice     string
	Preimage    string // hex, empty for send operations
	CreatedAt   time.Time
	ExpiresAt   time.Time
	SettledAt   time.Time // zero until settled
}

// Stats contains aggregate statistics about the operation log.
type Stats struct {
	TotalOperations int
	Pending         int
	Settled         int
	Expired         int
	BalanceMsat     int64
}

// Store defines the interface for operation log persistence.
type Store interface {
	SaveOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, paymentHash string) (*Operation, error)
	SettleOperation(ctx context.Context, paymentHash string, settledAt time.Time) error
	ExpireOperations(ctx context.Context, cutoff time.Time) ([]string, error)
	BalanceMsat(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*Stats, error)
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Snapshot(ctx context.Context, path string) error
	Close() error
}
