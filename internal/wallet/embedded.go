package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"blitzid/internal/logging"
	"blitzid/internal/store"
)

// DBFileName is the operation log file inside the data directory.
const DBFileName = "wallet.db"

const (
	DefaultInvoiceTTL = 1 * time.Hour

	sweepInterval  = 30 * time.Second
	metaFederation = "federation_invite"
)

// Options configures an EmbeddedWallet.
type Options struct {
	DataDir    string
	Federation string

	// InvoiceTTL is how long issued invoices stay payable. Zero means
	// DefaultInvoiceTTL.
	InvoiceTTL time.Duration

	// AutoSettleAfter settles every issued invoice after this delay.
	// Zero disables auto-settlement.
	AutoSettleAfter time.Duration
}

// EmbeddedWallet implements Client against a local SQLite operation log.
// It stands in for a remote federation wallet: invoices it issues are
// settled programmatically (Settle, auto-settle) or by paying them back
// through PayInvoice. It has no route to anyone else's invoices.
type EmbeddedWallet struct {
	store store.Store
	opts  Options

	mu     sync.Mutex
	subs   map[string][]chan error // waiters keyed by payment hash
	closed bool
	done   chan struct{}
}

var _ Client = (*EmbeddedWallet)(nil)

// NewEmbeddedWallet creates the data directory if needed, opens the
// operation log and pins the federation the directory belongs to.
func NewEmbeddedWallet(opts Options) (*EmbeddedWallet, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory not set")
	}
	if !strings.HasPrefix(opts.Federation, "fed1") {
		return nil, fmt.Errorf("invalid federation invite %q", opts.Federation)
	}
	if opts.InvoiceTTL <= 0 {
		opts.InvoiceTTL = DefaultInvoiceTTL
	}

	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(opts.DataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("open operation log: %w", err)
	}

	w := &EmbeddedWallet{
		store: st,
		opts:  opts,
		subs:  make(map[string][]chan error),
		done:  make(chan struct{}),
	}

	if err := w.bindFederation(); err != nil {
		st.Close()
		return nil, err
	}

	go w.sweepLoop()

	return w, nil
}

// bindFederation records the federation invite on first open and rejects
// reopening the directory under a different federation.
func (w *EmbeddedWallet) bindFederation() error {
	ctx := context.Background()

	stored, err := w.store.GetMeta(ctx, metaFederation)
	if errors.Is(err, store.ErrNotFound) {
		return w.store.SetMeta(ctx, metaFederation, w.opts.Federation)
	}
	if err != nil {
		return err
	}
	if stored != w.opts.Federation {
		return errors.New("data directory is bound to a different federation")
	}
	return nil
}

func (w *EmbeddedWallet) CreateInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error) {
	if amountMsat <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amountMsat)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	preimage, hash, err := newPreimage()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	op := &store.Operation{
		PaymentHash: hash,
		Kind:        store.KindReceive,
		State:       store.StatePending,
		AmountMsat:  amountMsat,
		Description: description,
		Invoice:     encodeInvoice(amountMsat, hash),
		Preimage:    preimage,
		CreatedAt:   now,
		ExpiresAt:   now.Add(w.opts.InvoiceTTL),
	}
	if err := w.store.SaveOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("record invoice: %w", err)
	}

	if w.opts.AutoSettleAfter > 0 {
		time.AfterFunc(w.opts.AutoSettleAfter, func() {
			if err := w.Settle(hash); err != nil && !errors.Is(err, ErrClosed) {
				logging.Wallet.Printf("auto-settle %s: %v", hash[:8], err)
			}
		})
	}

	return &Invoice{
		PaymentHash:    hash,
		PaymentRequest: op.Invoice,
		AmountMsat:     amountMsat,
	}, nil
}

func (w *EmbeddedWallet) AwaitPayment(ctx context.Context, paymentHash string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}

	op, err := w.store.GetOperation(ctx, paymentHash)
	if err != nil {
		w.mu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvoiceNotFound
		}
		return err
	}

	switch {
	case op.State == store.StateSettled:
		w.mu.Unlock()
		return nil
	case op.State == store.StateExpired:
		w.mu.Unlock()
		return ErrInvoiceExpired
	case op.ExpiresAt.Before(time.Now()):
		// Overdue but not yet swept.
		w.mu.Unlock()
		return ErrInvoiceExpired
	}

	ch := make(chan error, 1)
	w.subs[paymentHash] = append(w.subs[paymentHash], ch)
	w.mu.Unlock()

	expiry := time.NewTimer(time.Until(op.ExpiresAt))
	defer expiry.Stop()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		w.unsubscribe(paymentHash, ch)
		return ctx.Err()
	case <-expiry.C:
		w.unsubscribe(paymentHash, ch)
		// A settlement may have won the race; it would already be
		// buffered in the channel.
		select {
		case err := <-ch:
			return err
		default:
		}
		return ErrInvoiceExpired
	}
}

func (w *EmbeddedWallet) PayInvoice(ctx context.Context, invoice string) (string, error) {
	amountMsat, paymentHash, err := decodeInvoice(invoice)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", ErrClosed
	}

	op, err := w.store.GetOperation(ctx, paymentHash)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoRoute
	}
	if err != nil {
		return "", err
	}

	switch op.State {
	case store.StateSettled:
		// Paying the same invoice again yields the recorded preimage.
		return op.Preimage, nil
	case store.StateExpired:
		return "", ErrInvoiceExpired
	}

	if op.AmountMsat != amountMsat {
		return "", fmt.Errorf("%w: amount mismatch", ErrInvalidInvoice)
	}

	if err := w.store.SettleOperation(ctx, paymentHash, time.Now()); err != nil {
		return "", fmt.Errorf("settle invoice: %w", err)
	}
	w.notifyLocked(paymentHash, nil)

	return op.Preimage, nil
}

func (w *EmbeddedWallet) Balance(ctx context.Context) (int64, error) {
	return w.store.BalanceMsat(ctx)
}

// Settle marks a pending invoice paid and wakes every waiter. Settling an
// invoice that is already settled is a no-op.
func (w *EmbeddedWallet) Settle(paymentHash string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	ctx := context.Background()
	op, err := w.store.GetOperation(ctx, paymentHash)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}

	switch op.State {
	case store.StateSettled:
		return nil
	case store.StateExpired:
		return ErrInvoiceExpired
	}

	if err := w.store.SettleOperation(ctx, paymentHash, time.Now()); err != nil {
		return err
	}
	w.notifyLocked(paymentHash, nil)

	return nil
}

// Stats reports aggregate counts from the operation log.
func (w *EmbeddedWallet) Stats(ctx context.Context) (*store.Stats, error) {
	return w.store.GetStats(ctx)
}

// Snapshot writes a consistent copy of the operation log to path.
func (w *EmbeddedWallet) Snapshot(ctx context.Context, path string) error {
	return w.store.Snapshot(ctx, path)
}

// Close stops the expiry sweep, unblocks every waiter with ErrClosed and
// closes the operation log.
func (w *EmbeddedWallet) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	for hash, waiters := range w.subs {
		for _, ch := range waiters {
			ch <- ErrClosed
		}
		delete(w.subs, hash)
	}
	w.mu.Unlock()

	return w.store.Close()
}

func (w *EmbeddedWallet) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.sweepExpired()
		}
	}
}

// sweepExpired expires overdue pending invoices and notifies their waiters.
func (w *EmbeddedWallet) sweepExpired() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	hashes, err := w.store.ExpireOperations(context.Background(), time.Now())
	if err != nil {
		logging.Wallet.Printf("expiry sweep: %v", err)
		return
	}
	for _, hash := range hashes {
		w.notifyLocked(hash, ErrInvoiceExpired)
	}
	if len(hashes) > 0 {
		logging.Wallet.Printf("expired %d invoice(s)", len(hashes))
	}
}

// notifyLocked resolves every waiter for the hash. Callers hold w.mu; the
// channels are buffered so sends never block.
func (w *EmbeddedWallet) notifyLocked(paymentHash string, result error) {
	for _, ch := range w.subs[paymentHash] {
		ch <- result
	}
	delete(w.subs, paymentHash)
}

func (w *EmbeddedWallet) unsubscribe(paymentHash string, ch chan error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	waiters := w.subs[paymentHash]
	for i, c := range waiters {
		if c == ch {
			w.subs[paymentHash] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(w.subs[paymentHash]) == 0 {
		delete(w.subs, paymentHash)
	}
}
