// Package backup periodically snapshots the wallet operation log and
// uploads the snapshots to an S3-compatible bucket (Backblaze B2).
package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"blitzid/internal/logging"
)

const defaultEndpoint = "s3.us-east-005.backblazeb2.com"

// Snapshotter writes a consistent copy of the wallet database to path.
// The path must not already exist.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// Target receives finished snapshot files.
type Target interface {
	Upload(ctx context.Context, path string) error
}

// Config holds B2 upload configuration.
type Config struct {
	AccountID  string // B2_ACCOUNT_ID
	AccountKey string // B2_ACCOUNT_KEY
	Bucket     string // B2_BUCKET
	Prefix     string // B2_PREFIX - optional folder prefix for all objects
	Endpoint   string // B2_ENDPOINT - optional, defaults to the us-east-005 S3 endpoint
}

// ConfigFromEnv reads the B2 settings from the environment. Backups are
// enabled only when B2_BUCKET is set.
func ConfigFromEnv() (Config, bool) {
	bucket := os.Getenv("B2_BUCKET")
	if bucket == "" {
		return Config{}, false
	}
	return Config{
		AccountID:  os.Getenv("B2_ACCOUNT_ID"),
		AccountKey: os.Getenv("B2_ACCOUNT_KEY"),
		Bucket:     bucket,
		Prefix:     os.Getenv("B2_PREFIX"),
		Endpoint:   os.Getenv("B2_ENDPOINT"),
	}, true
}

// B2Target uploads snapshots to Backblaze B2 via the S3-compatible API.
type B2Target struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Target = (*B2Target)(nil)

// NewB2Target creates an upload target for the configured bucket.
func NewB2Target(cfg Config) (*B2Target, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	logging.Backup.Printf("initializing target (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccountID, cfg.AccountKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create b2 client: %w", err)
	}

	return &B2Target{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Upload stores the snapshot under a timestamped object name so earlier
// backups are never overwritten.
func (t *B2Target) Upload(ctx context.Context, snapshotPath string) error {
	key := fmt.Sprintf("wallet-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	if t.prefix != "" {
		key = path.Join(t.prefix, key)
	}

	info, err := t.client.FPutObject(ctx, t.bucket, key, snapshotPath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	logging.Backup.Printf("uploaded %s (%d bytes)", key, info.Size)
	return nil
}

// Run snapshots the wallet every interval and hands the file to the
// target, until ctx is cancelled. Failures are logged, never fatal.
func Run(ctx context.Context, snap Snapshotter, target Target, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runOnce(ctx, snap, target); err != nil && ctx.Err() == nil {
				logging.Backup.Printf("backup failed: %v", err)
			}
		}
	}
}

func runOnce(ctx context.Context, snap Snapshotter, target Target) error {
	dir, err := os.MkdirTemp("", "blitzid-backup-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(dir)

	// Snapshot refuses to overwrite, so the file must not exist yet.
	snapshotPath := filepath.Join(dir, "wallet.db")
	if err := snap.Snapshot(ctx, snapshotPath); err != nil {
		return fmt.Errorf("snapshot wallet: %w", err)
	}

	return target.Upload(ctx, snapshotPath)
}
