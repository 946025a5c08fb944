// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/logging"
)

// S3ClientConfig holds the settings for the S3-compatible remote store.
type S3ClientConfig struct {
	// Endpoint overrides the S3 endpoint for compatible stores (MinIO,
	// Ceph RGW). Empty means AWS.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// Prefix namespaces this application's snapshots within the bucket.
	Prefix string
}

// S3SyncClient replicates snapshots to an S3-compatible object store.
//
// The remote store is append-style: uploads never compare-and-swap, so
// concurrent uploads from two devices resolve as last-write-wins. The
// client performs no retries; the facade owns retry and timeout policy.
type S3SyncClient struct {
	cfg    S3ClientConfig
	client *s3.Client

	mu         sync.RWMutex
	lastSyncAt *time.Time
}

// NewS3SyncClient creates a remote sync client for the configured bucket.
func NewS3SyncClient(cfg S3ClientConfig) *S3SyncClient {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3SyncClient{
		cfg:    cfg,
		client: s3.New(opts),
	}
}

// Upload transmits the full snapshot under a timestamp-ordered key.
func (c *S3SyncClient) Upload(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot for upload: %w", err)
	}

	key := c.objectKey(snapshot)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return classifyRemoteError("upload", err)
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.lastSyncAt = &now
	c.mu.Unlock()

	logging.Info().
		Str("bucket", c.cfg.Bucket).
		Str("key", key).
		Int("size_bytes", len(data)).
		Msg("snapshot uploaded")
	return nil
}

// Download fetches a specific remote snapshot by key, or the most recent
// one when id is empty.
func (c *S3SyncClient) Download(ctx context.Context, id string) (*Snapshot, error) {
	key := id
	if key == "" {
		latest, err := c.latestKey(ctx)
		if err != nil {
			return nil, err
		}
		key = latest
	}

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyRemoteError("download", err)
	}
	defer out.Body.Close() //nolint:errcheck // Best effort cleanup

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read remote snapshot body: %v", ErrNetwork, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode remote snapshot %s: %w", key, err)
	}
	return &snapshot, nil
}

// LastSyncAt returns the time of the last successful upload.
func (c *S3SyncClient) LastSyncAt() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSyncAt
}

// IsStale reports whether the last successful sync is older than maxAge.
// A client that has never synced is always stale.
func (c *S3SyncClient) IsStale(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastSyncAt == nil {
		return true
	}
	return time.Since(*c.lastSyncAt) >= maxAge
}

// latestKey lists the snapshot prefix and returns the lexically greatest
// key. Keys embed a zero-padded timestamp, so lexical order is
// chronological.
func (c *S3SyncClient) latestKey(ctx context.Context) (string, error) {
	prefix := c.cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", classifyRemoteError("list", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no remote snapshots under %s", ErrNotFound, prefix)
	}

	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

// objectKey derives the remote key for a snapshot.
func (c *S3SyncClient) objectKey(snapshot *Snapshot) string {
	name := "snapshot-" + snapshot.CreatedAt.UTC().Format(filenameTimeLayout) + snapshotFileExt
	if c.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(c.cfg.Prefix, "/") + "/" + name
}

// classifyRemoteError maps SDK failures onto the engine's error taxonomy:
// service-side rejections become ErrRemoteRejected, missing objects become
// ErrNotFound, and everything else (transport, timeout, cancellation) is
// ErrNetwork.
func classifyRemoteError(op string, err error) error {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: remote snapshot missing", ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %s", ErrRemoteRejected, op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
}
