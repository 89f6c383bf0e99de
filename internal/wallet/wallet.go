package wallet

import (
	"context"
	"errors"
)

// Invoice represents an invoice issued by the wallet.
type Invoice struct {
	PaymentHash    string // hex-encoded SHA-256 of the preimage
	PaymentRequest string // encoded invoice handed to the payer
	AmountMsat     int64
}

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrInvoiceExpired  = errors.New("invoice expired")
	ErrInvalidInvoice  = errors.New("invalid invoice")
	ErrNoRoute         = errors.New("no route to destination")
	ErrClosed          = errors.New("wallet closed")
)

// Client defines the interface for wallet operations. Implementations must
// tolerate concurrent calls from many in-flight requests.
type Client interface {
	// CreateInvoice issues an invoice for the given amount.
	CreateInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error)

	// AwaitPayment blocks until the invoice identified by paymentHash is
	// settled, and returns nil. It returns ErrInvoiceNotFound for unknown
	// hashes, ErrInvoiceExpired if the invoice expires while waiting, and
	// ctx.Err() when the caller gives up.
	AwaitPayment(ctx context.Context, paymentHash string) error

	// PayInvoice pays an encoded invoice and returns the hex preimage.
	// Unparseable invoices fail with ErrInvalidInvoice.
	PayInvoice(ctx context.Context, invoice string) (string, error)

	// Balance returns the current balance in millisatoshi.
	Balance(ctx context.Context) (int64, error)

	Close() error
}
