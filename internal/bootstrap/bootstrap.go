// Package bootstrap provides dependency initialization for the PromptReel API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptreel/promptreel-api/internal/config"
	"github.com/promptreel/promptreel-api/internal/decart"
	"github.com/promptreel/promptreel-api/internal/fal"
	"github.com/promptreel/promptreel-api/internal/job"
	"github.com/promptreel/promptreel-api/internal/provider"
	"github.com/promptreel/promptreel-api/internal/storage"
)

// fetchTimeout bounds how long adapters wait when downloading input media.
const fetchTimeout = 60 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Store      storage.ObjectStore

	// Close releases held resources (database pool). Safe to call once.
	Close func()
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, closeRepo, err := initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := newRegistry(cfg, store)

	svc := job.NewService(repo, registry, logger, job.WithTTL(cfg.JobTTL))

	return &Dependencies{
		JobService: svc,
		Store:      store,
		Close:      closeRepo,
	}, nil
}

// newRegistry wires every known provider. Factories for providers without
// credentials return a ConfigurationError at resolve time; the registry's
// configured checks keep them out of default selection.
func newRegistry(cfg *config.Config, store storage.ObjectStore) *provider.Registry {
	registry := provider.NewRegistry(cfg.ProviderName)
	fetcher := provider.NewHTTPFileFetcher(fetchTimeout)

	registry.Register(provider.NameLucy14b,
		func() (provider.Adapter, error) {
			if !cfg.FALEnabled() {
				return nil, &provider.ConfigurationError{Provider: provider.NameLucy14b, Missing: "FAL_API_KEY"}
			}
			client, err := fal.NewClient(
				fal.WithAPIKey(cfg.FALAPIKey),
				fal.WithBaseURL(cfg.FALBaseURL),
			)
			if err != nil {
				return nil, err
			}
			return provider.NewLucy14bAdapter(client), nil
		},
		cfg.FALEnabled,
		provider.Lucy14bModelCodes...,
	)

	registry.Register(provider.NameSplice,
		func() (provider.Adapter, error) {
			if !cfg.DecartEnabled() {
				return nil, &provider.ConfigurationError{Provider: provider.NameSplice, Missing: "DECART_API_KEY"}
			}
			client, err := decart.NewClient(decart.WithAPIKey(cfg.DecartAPIKey))
			if err != nil {
				return nil, err
			}
			return provider.NewSpliceAdapter(client, fetcher, store), nil
		},
		cfg.DecartEnabled,
		provider.SpliceModelCodes...,
	)

	registry.Register(provider.NameMirageLSD,
		func() (provider.Adapter, error) {
			if !cfg.MirageEnabled() {
				return nil, &provider.ConfigurationError{Provider: provider.NameMirageLSD, Missing: "MIRAGE_BASE_URL"}
			}
			client := decart.NewMirageClient(decart.WithMirageBaseURL(cfg.MirageBaseURL))
			return provider.NewMirageLSDAdapter(client, fetcher, store), nil
		},
		cfg.MirageEnabled,
		provider.MirageLSDModelCodes...,
	)

	return registry
}

// initRepository selects the job store: Postgres when DATABASE_URL is set,
// in-memory otherwise.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("in-memory job store configured")
		return job.NewMemoryRepository(), func() {}, nil
	}

	pool, err := job.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect job store: %w", err)
	}

	repo, err := job.NewPostgresRepository(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("init job store: %w", err)
	}

	logger.Info("postgres job store configured")
	return repo, pool.Close, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("dir", cfg.StorageDir),
	)
	return localStore, nil
}
