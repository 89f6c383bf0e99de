package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		op := &Operation{
			PaymentHash: "aaaa1111",
			Kind:        KindReceive,
			State:       StatePending,
			AmountMsat:  25000,
			Description: "coffee",
			Invoice:     "lnsim125000maaaa1111",
			Preimage:    "bbbb2222",
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(1 * time.Hour),
		}

		if err := store.SaveOperation(ctx, op); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		got, err := store.GetOperation(ctx, "aaaa1111")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}

		if got.PaymentHash != op.PaymentHash || got.Kind != op.Kind || got.State != op.State {
			t.Errorf("got %+v, want %+v", got, op)
		}
		if got.AmountMsat != op.AmountMsat {
			t.Errorf("got AmountMsat %d, want %d", got.AmountMsat, op.AmountMsat)
		}
		if got.Preimage != op.Preimage {
			t.Errorf("got Preimage %s, want %s", got.Preimage, op.Preimage)
		}
		if !got.SettledAt.IsZero() {
			t.Errorf("expected zero SettledAt, got %v", got.SettledAt)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := store.GetOperation(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DuplicateHashRejected", func(t *testing.T) {
		op := &Operation{
			PaymentHash: "dupe-hash",
			Kind:        KindReceive,
			State:       StatePending,
			AmountMsat:  100,
			Invoice:     "lnsim1100mdupe",
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		if err := store.SaveOperation(ctx, op); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := store.SaveOperation(ctx, op); err == nil {
			t.Error("expected error saving duplicate payment hash")
		}
	})

	t.Run("Settle", func(t *testing.T) {
		op := &Operation{
			PaymentHash: "settle-me",
			Kind:        KindReceive,
			State:       StatePending,
			AmountMsat:  5000,
			Invoice:     "lnsim15000msettleme",
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(1 * time.Hour),
		}
		store.SaveOperation(ctx, op)

		if err := store.SettleOperation(ctx, "settle-me", time.Now()); err != nil {
			t.Fatalf("failed to settle: %v", err)
		}

		got, _ := store.GetOperation(ctx, "settle-me")
		if got.State != StateSettled {
			t.Errorf("expected state %s, got %s", StateSettled, got.State)
		}
		if got.SettledAt.IsZero() {
			t.Error("expected SettledAt to be set")
		}

		// A settled operation has no pending row left to settle.
		if err := store.SettleOperation(ctx, "settle-me", time.Now()); err != ErrNotFound {
			t.Errorf("expected ErrNotFound on double settle, got %v", err)
		}
	})

	t.Run("SettleNotFound", func(t *testing.T) {
		if err := store.SettleOperation(ctx, "no-such-hash", time.Now()); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Expire", func(t *testing.T) {
		overdue := &Operation{
			PaymentHash: "overdue-hash",
			Kind:        KindReceive,
			State:       StatePending,
			AmountMsat:  100,
			Invoice:     "lnsim1100moverdue",
			CreatedAt:   time.Now().Add(-2 * time.Hour),
			ExpiresAt:   time.Now().Add(-1 * time.Hour),
		}
		store.SaveOperation(ctx, overdue)

		fresh := &Operation{
			PaymentHash: "fresh-hash",
			Kind:        KindReceive,
			State:       StatePending,
			AmountMsat:  100,
			Invoice:     "lnsim1100mfresh",
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(1 * time.Hour),
		}
		store.SaveOperation(ctx, fresh)

		hashes, err := store.ExpireOperations(ctx, time.Now())
		if err != nil {
			t.Fatalf("failed to expire: %v", err)
		}

		found := false
		for _, h := range hashes {
			if h == "overdue-hash" {
				found = true
			}
			if h == "fresh-hash" {
				t.Error("fresh-hash should not be expired")
			}
		}
		if !found {
			t.Error("overdue-hash should be in expired list")
		}

		got, _ := store.GetOperation(ctx, "overdue-hash")
		if got.State != StateExpired {
			t.Errorf("expected state %s, got %s", StateExpired, got.State)
		}

		// Second sweep finds nothing new.
		hashes, err = store.ExpireOperations(ctx, time.Now())
		if err != nil {
			t.Fatalf("second expire failed: %v", err)
		}
		if len(hashes) != 0 {
			t.Errorf("expected no hashes on second sweep, got %v", hashes)
		}
	})
}

func TestSQLiteStore_Balance(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	balance, err := store.BalanceMsat(ctx)
	if err != nil {
		t.Fatalf("BalanceMsat failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected 0 balance, got %d", balance)
	}

	ops := []*Operation{
		{PaymentHash: "r1", Kind: KindReceive, State: StateSettled, AmountMsat: 5000, Invoice: "lnsim15000mr1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour), SettledAt: time.Now()},
		{PaymentHash: "r2", Kind: KindReceive, State: StatePending, AmountMsat: 7000, Invoice: "lnsim17000mr2", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)},
		{PaymentHash: "s1", Kind: KindSend, State: StateSettled, AmountMsat: 2000, Invoice: "lnsim12000ms1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour), SettledAt: time.Now()},
	}
	for _, op := range ops {
		if err := store.SaveOperation(ctx, op); err != nil {
			t.Fatalf("failed to save %s: %v", op.PaymentHash, err)
		}
	}

	balance, err = store.BalanceMsat(ctx)
	if err != nil {
		t.Fatalf("BalanceMsat failed: %v", err)
	}
	// Settled receive minus settled send; the pending receive does not count.
	if balance != 5000-2000 {
		t.Errorf("expected balance %d, got %d", 5000-2000, balance)
	}
}

func TestSQLiteStore_Meta(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	_, err = store.GetMeta(ctx, "federation")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetMeta(ctx, "federation", "fed1abc"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	got, err := store.GetMeta(ctx, "federation")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if got != "fed1abc" {
		t.Errorf("expected fed1abc, got %s", got)
	}

	// Overwrite.
	if err := store.SetMeta(ctx, "federation", "fed1xyz"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}
	got, _ = store.GetMeta(ctx, "federation")
	if got != "fed1xyz" {
		t.Errorf("expected fed1xyz, got %s", got)
	}
}

func TestSQLiteStore_GetStats(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("empty database", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalOperations != 0 {
			t.Errorf("expected 0 total operations, got %d", stats.TotalOperations)
		}
		if stats.BalanceMsat != 0 {
			t.Errorf("expected 0 balance, got %d", stats.BalanceMsat)
		}
	})

	t.Run("with operations", func(t *testing.T) {
		ops := []*Operation{
			{PaymentHash: "st1", Kind: KindReceive, State: StateSettled, AmountMsat: 1000, Invoice: "i1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour), SettledAt: time.Now()},
			{PaymentHash: "st2", Kind: KindReceive, State: StatePending, AmountMsat: 2000, Invoice: "i2", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)},
			{PaymentHash: "st3", Kind: KindReceive, State: StateExpired, AmountMsat: 3000, Invoice: "i3", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Hour)},
		}
		for _, op := range ops {
			store.SaveOperation(ctx, op)
		}

		stats, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}

		if stats.TotalOperations != 3 {
			t.Errorf("expected 3 total operations, got %d", stats.TotalOperations)
		}
		if stats.Pending != 1 {
			t.Errorf("expected 1 pending, got %d", stats.Pending)
		}
		if stats.Settled != 1 {
			t.Errorf("expected 1 settled, got %d", stats.Settled)
		}
		if stats.Expired != 1 {
			t.Errorf("expected 1 expired, got %d", stats.Expired)
		}
		if stats.BalanceMsat != 1000 {
			t.Errorf("expected balance 1000, got %d", stats.BalanceMsat)
		}
	})
}

func TestSQLiteStore_Snapshot(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	op := &Operation{
		PaymentHash: "snap-hash",
		Kind:        KindReceive,
		State:       StateSettled,
		AmountMsat:  4200,
		Invoice:     "lnsim14200msnap",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
		SettledAt:   time.Now(),
	}
	if err := store.SaveOperation(ctx, op); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.db")
	if err := store.Snapshot(ctx, path); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	copied, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer copied.Close()

	got, err := copied.GetOperation(ctx, "snap-hash")
	if err != nil {
		t.Fatalf("failed to read from snapshot: %v", err)
	}
	if got.AmountMsat != 4200 || !strings.HasPrefix(got.Invoice, "lnsim1") {
		t.Errorf("snapshot contents wrong: %+v", got)
	}
}
