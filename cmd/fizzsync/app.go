package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/illmade-knight/go-fizzgrid/pkg/config"
	"github.com/illmade-knight/go-fizzgrid/pkg/fizzgrid"
	"github.com/illmade-knight/go-fizzgrid/pkg/invalidation"
	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// app is the wired data layer of one fizzsync process.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	cache    *cache.QueryCache
	client   *fizzgrid.Client

	pubsubClient *pubsub.Client
	publisher    *invalidation.Publisher
	listener     *invalidation.Listener
	recorder     *activity.Recorder
	closers      []closer
}

// closer is a cloud client to close on shutdown, named for the logs.
type closer struct {
	name  string
	close func() error
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(cfg.ParseLevel()).
		With().Timestamp().Str("service", cfg.ServiceName).Logger()
}

func (a *app) clientOptions() []option.ClientOption {
	if a.cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(a.cfg.CredentialsFile)}
}

// newApp wires transport, cache, stores, activity sinks and the invalidation
// bus according to cfg. The listener is created but not started.
// Anything opened before a failure is closed again.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.wire(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api, err := transport.NewClient(&transport.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		CSRFCookieName: cfg.API.CSRFCookieName,
		CSRFHeaderName: cfg.API.CSRFHeaderName,
		UserAgent:      "fizzsync/" + version,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	if cfg.API.SessionCookie != "" {
		api.SetCookie("sessionid", cfg.API.SessionCookie)
	}
	if cfg.API.CSRFToken != "" {
		api.SetCookie(cfg.API.CSRFCookieName, cfg.API.CSRFToken)
	}

	opts := []cache.Option{cache.WithMetrics(cache.NewMetrics(a.registry, "fizzgrid"))}
	store, err := a.newStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		opts = append(opts, cache.WithStore(store))
	}
	a.cache = cache.New(&cache.Config{
		DefaultRetry:      cfg.Cache.DefaultRetry,
		RetryDelay:        cfg.Cache.RetryDelay,
		StaleTime:         cfg.Cache.StaleTime,
		StoreWriteTimeout: cfg.Cache.StoreWriteTimeout,
	}, logger, opts...)

	var clientOpts []fizzgrid.Option
	if err := a.newRecorder(ctx); err != nil {
		return err
	}
	if a.recorder != nil {
		clientOpts = append(clientOpts, fizzgrid.WithActivityRecorder(a.recorder))
	}
	if err := a.newInvalidation(ctx); err != nil {
		return err
	}
	if a.publisher != nil {
		clientOpts = append(clientOpts, fizzgrid.WithInvalidationPublisher(a.publisher))
	}
	clientOpts = append(clientOpts, fizzgrid.WithLoginPrompter(toggleLoginPrompter(logger)))

	a.client, err = fizzgrid.NewClient(fizzgrid.DefaultConfig(), api, a.cache, logger, clientOpts...)
	return err
}

func (a *app) newStore(ctx context.Context) (cache.Store[string, json.RawMessage], error) {
	cc := a.cfg.Cache
	switch cc.Store {
	case config.StoreMemory:
		return cache.NewInMemoryStore[string, json.RawMessage](), nil
	case config.StoreLRU:
		return cache.NewLRUStore[string, json.RawMessage](cc.LRUSize)
	case config.StoreRedis:
		return cache.NewRedisStore[string, json.RawMessage](ctx, &cache.RedisConfig{
			Addr:      cc.Redis.Addr,
			Password:  cc.Redis.Password,
			DB:        cc.Redis.DB,
			CacheTTL:  cc.Redis.TTL,
			KeyPrefix: cc.Redis.KeyPrefix,
		}, a.logger)
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, a.cfg.ProjectID, a.clientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("firestore.NewClient: %w", err)
		}
		a.closers = append(a.closers, closer{"firestore", client.Close})
		return cache.NewFirestoreStore(&cache.FirestoreConfig{
			ProjectID:      a.cfg.ProjectID,
			CollectionName: cc.Firestore.Collection,
		}, client, a.logger)
	default:
		return nil, nil
	}
}

func (a *app) newRecorder(ctx context.Context) error {
	ac := a.cfg.Activity
	var inserter activity.BatchInserter
	switch ac.Sink {
	case config.SinkBigQuery:
		bqCfg := &activity.BigQueryConfig{
			ProjectID:       a.cfg.ProjectID,
			DatasetID:       ac.BigQuery.DatasetID,
			TableID:         ac.BigQuery.TableID,
			CredentialsFile: a.cfg.CredentialsFile,
		}
		client, err := activity.NewProductionBigQueryClient(ctx, bqCfg, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closer{"bigquery", client.Close})
		inserter, err = activity.NewBigQueryInserter(ctx, client, bqCfg, a.logger)
		if err != nil {
			return err
		}
	case config.SinkGCS:
		client, err := storage.NewClient(ctx, a.clientOptions()...)
		if err != nil {
			return fmt.Errorf("storage.NewClient: %w", err)
		}
		a.closers = append(a.closers, closer{"storage", client.Close})
		inserter, err = activity.NewGCSUploader(activity.NewGCSClientAdapter(client), activity.GCSUploaderConfig{
			BucketName:   ac.GCS.BucketName,
			ObjectPrefix: ac.GCS.ObjectPrefix,
		}, a.logger)
		if err != nil {
			return err
		}
	default:
		return nil
	}

	a.recorder = activity.NewRecorder(&activity.RecorderConfig{
		BatchSize:     ac.BatchSize,
		FlushInterval: ac.FlushInterval,
		BufferSize:    ac.BufferSize,
	}, inserter, a.logger)
	// Stop, not ctx, ends the recorder so events raised during shutdown are kept.
	a.recorder.Start(context.WithoutCancel(ctx))
	return nil
}

func (a *app) newInvalidation(ctx context.Context) error {
	ic := a.cfg.Invalidation
	if ic.TopicID == "" && ic.SubscriptionID == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.ProjectID, a.clientOptions()...)
	if err != nil {
		return fmt.Errorf("pubsub.NewClient: %w", err)
	}
	a.pubsubClient = client

	origin := ic.Origin
	if ic.TopicID != "" {
		pcfg := invalidation.DefaultPublisherConfig(ic.TopicID)
		pcfg.Origin = origin
		a.publisher, err = invalidation.NewPublisher(ctx, pcfg, client, a.logger)
		if err != nil {
			return err
		}
		origin = a.publisher.Origin()
	}
	if ic.SubscriptionID != "" {
		a.listener, err = invalidation.NewListener(ctx, invalidation.DefaultListenerConfig(ic.SubscriptionID, origin), client, a.cache, a.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

// close stops every component in reverse dependency order.
func (a *app) close(ctx context.Context) {
	if a.listener != nil {
		if err := a.listener.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop invalidation listener.")
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop invalidation publisher.")
		}
	}
	if a.pubsubClient != nil {
		_ = a.pubsubClient.Close()
	}
	if a.recorder != nil {
		if err := a.recorder.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop activity recorder.")
		}
		if n := a.recorder.Dropped(); n > 0 {
			a.logger.Warn().Int64("dropped", n).Msg("Activity events were dropped.")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close query cache.")
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		a.logger.Debug().Str("client", c.name).Msg("Closed cloud client.")
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close cloud clients.")
	}
}
