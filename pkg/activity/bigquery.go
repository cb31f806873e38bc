package activity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryConfig names the table events are streamed to.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string // Optional: path to a service account JSON file.
}

// NewProductionBigQueryClient creates a BigQuery client using Application
// Default Credentials unless a credentials file is given.
func NewProductionBigQueryClient(ctx context.Context, cfg *BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client.")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

// BigQueryInserter streams event batches into a BigQuery table.
type BigQueryInserter struct {
	table    *bigquery.Table
	inserter *bigquery.Inserter
	logger   zerolog.Logger
}

// NewBigQueryInserter connects to the configured table, creating it with a
// schema inferred from Event when it does not exist.
func NewBigQueryInserter(ctx context.Context, client *bigquery.Client, cfg *BigQueryConfig, logger zerolog.Logger) (*BigQueryInserter, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("bigquery config cannot be nil")
	}
	logger = logger.With().
		Str("component", "BigQueryInserter").
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Creating it with the event schema.")
		schema, err := bigquery.InferSchema(Event{})
		if err != nil {
			return nil, fmt.Errorf("failed to infer event schema: %w", err)
		}
		meta := &bigquery.TableMetadata{
			Schema:           schema,
			TimePartitioning: &bigquery.TimePartitioning{Field: "occurred_at"},
		}
		if err := table.Create(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
		}
		logger.Info().Msg("BigQuery table created.")
	}

	return &BigQueryInserter{
		table:    table,
		inserter: table.Inserter(),
		logger:   logger,
	}, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// InsertBatch streams events into the table. Rows are keyed by event id so a
// retried batch is deduplicated.
func (i *BigQueryInserter) InsertBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*bigquery.StructSaver, 0, len(events))
	for _, ev := range events {
		rows = append(rows, &bigquery.StructSaver{Struct: ev, InsertID: ev.ID})
	}

	if err := i.inserter.Put(ctx, rows); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				i.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	i.logger.Debug().Int("batch_size", len(events)).Msg("Inserted activity batch into BigQuery.")
	return nil
}

// Close is a no-op: the BigQuery client is owned by the caller.
func (i *BigQueryInserter) Close() error {
	return nil
}
