package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore client.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreSnapshot is the document layout. Payloads are kept as raw JSON
// bytes so any value type round-trips without Firestore type mapping.
type firestoreSnapshot struct {
	Payload []byte `firestore:"payload"`
}

// FirestoreStore persists JSON snapshots as documents of one collection.
// Fine for low-volume deployments; use RedisStore when volume grows.
type FirestoreStore struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new FirestoreStore.
func NewFirestoreStore(
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("firestore collection name is required")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// docID escapes a canonical key so it is a legal document ID ("/" is not).
func docID(key string) string {
	return url.PathEscape(key)
}

// FetchFromCache retrieves a snapshot document by its key.
func (s *FirestoreStore) FetchFromCache(ctx context.Context, key string) (json.RawMessage, error) {
	docSnap, err := s.client.Collection(s.collectionName).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("document %s: %w", key, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return nil, fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var snap firestoreSnapshot
	if err := docSnap.DataTo(&snap); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to map Firestore document data.")
		return nil, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}
	return json.RawMessage(snap.Payload), nil
}

// WriteToCache writes a snapshot document.
func (s *FirestoreStore) WriteToCache(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.client.Collection(s.collectionName).Doc(docID(key)).Set(ctx, firestoreSnapshot{Payload: []byte(value)})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes a snapshot document.
func (s *FirestoreStore) Invalidate(ctx context.Context, key string) error {
	if _, err := s.client.Collection(s.collectionName).Doc(docID(key)).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete for %s: %w", key, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	return nil
}
