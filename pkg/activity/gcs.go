package activity

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GCSClient abstracts *storage.Client so the uploader can run against an
// in-memory bucket in tests.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter wraps a *storage.Client as a GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectAdapter{handle: a.handle.Object(name)}
}

type gcsObjectAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	w := a.handle.NewWriter(ctx)
	w.ContentType = "application/jsonl"
	w.ContentEncoding = "gzip"
	return w
}

// GCSUploaderConfig names the archive location.
type GCSUploaderConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSUploader archives event batches as gzipped JSON lines. Each batch is
// split by BatchKey and every group becomes one object under
// <prefix>/<batch key>/<uuid>.jsonl.gz.
type GCSUploader struct {
	client GCSClient
	config GCSUploaderConfig
	logger zerolog.Logger
}

// NewGCSUploader creates an uploader for the configured bucket.
func NewGCSUploader(client GCSClient, config GCSUploaderConfig, logger zerolog.Logger) (*GCSUploader, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSUploader{
		client: client,
		config: config,
		logger: logger.With().Str("component", "GCSUploader").Logger(),
	}, nil
}

// InsertBatch uploads each group of the batch in parallel.
func (u *GCSUploader) InsertBatch(ctx context.Context, events []*Event) error {
	groups := make(map[string][]*Event)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		key := ev.BatchKey()
		groups[key] = append(groups[key], ev)
	}
	if len(groups) == 0 {
		return nil
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			return u.uploadGroup(gctx, key, groups[key])
		})
	}
	return g.Wait()
}

func (u *GCSUploader) uploadGroup(ctx context.Context, batchKey string, events []*Event) error {
	objectName := path.Join(u.config.ObjectPrefix, batchKey, uuid.NewString()+".jsonl.gz")
	w := u.client.Bucket(u.config.BucketName).Object(objectName).NewWriter(ctx)

	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			_ = w.Close()
			return fmt.Errorf("json encoding failed for %s: %w", objectName, err)
		}
	}
	if err := gz.Close(); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to compress %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, err)
	}

	u.logger.Debug().Str("object_name", objectName).Int("record_count", len(events)).Msg("Uploaded activity batch.")
	return nil
}

// Close is a no-op: uploads complete within InsertBatch.
func (u *GCSUploader) Close() error {
	return nil
}
