package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection keeps concurrent writers from tripping over
	// SQLITE_BUSY and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS operations (
			payment_hash TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			state TEXT NOT NULL,
			amount_msat INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			invoice TEXT NOT NULL,
			preimage TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			settled_at DATETIME
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS operations_state_idx
		ON operations (state, expires_at)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

func (s *SQLiteStore) SaveOperation(ctx context.Context, op *Operation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (payment_hash, kind, state, amount_msat, description, invoice, preimage, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.PaymentHash, op.Kind, op.State, op.AmountMsat, op.Description, op.Invoice, op.Preimage, op.CreatedAt, op.ExpiresAt)
	return err
}

func (s *SQLiteStore) GetOperation(ctx context.Context, paymentHash string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payment_hash, kind, state, amount_msat, description, invoice, preimage, created_at, expires_at, settled_at
		FROM operations WHERE payment_hash = ?
	`, paymentHash)

	var op Operation
	var settledAt sql.NullTime
	err := row.Scan(&op.PaymentHash, &op.Kind, &op.State, &op.AmountMsat, &op.Description, &op.Invoice, &op.Preimage, &op.CreatedAt, &op.ExpiresAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		op.SettledAt = settledAt.Time
	}
	return &op, nil
}

// SettleOperation marks a pending operation settled. Returns ErrNotFound if
// no pending operation exists for the hash.
func (s *SQLiteStore) SettleOperation(ctx context.Context, paymentHash string, settledAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE operations SET state = ?, settled_at = ?
		WHERE payment_hash = ? AND state = ?
	`, StateSettled, settledAt, paymentHash, StatePending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOperations transitions pending operations whose expiry has passed
// and returns their payment hashes.
func (s *SQLiteStore) ExpireOperations(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_hash FROM operations
		WHERE state = ? AND expires_at < ?
	`, StatePending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(hashes) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE operations SET state = ?
		WHERE state = ? AND expires_at < ?
	`, StateExpired, StatePending, cutoff)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *SQLiteStore) BalanceMsat(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE kind WHEN ? THEN amount_msat ELSE -amount_msat END), 0)
		FROM operations WHERE state = ?
	`, KindReceive, StateSettled)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) as pending,
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) as settled,
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) as expired
		FROM operations
	`, StatePending, StateSettled, StateExpired)

	err := row.Scan(&stats.TotalOperations, &stats.Pending, &stats.Settled, &stats.Expired)
	if err != nil {
		return nil, err
	}

	stats.BalanceMsat, err = s.BalanceMsat(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key)

	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Snapshot writes a consistent copy of the database to path using VACUUM
// INTO. The destination must not already exist.
func (s *SQLiteStore) Snapshot(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
