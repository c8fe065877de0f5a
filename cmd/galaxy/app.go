package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/internal/api"
	"github.com/Sternrassler/hatebu-galaxy/internal/config"
	"github.com/Sternrassler/hatebu-galaxy/pkg/cache"
	"github.com/Sternrassler/hatebu-galaxy/pkg/gather"
	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/Sternrassler/hatebu-galaxy/pkg/pagination"
	"github.com/Sternrassler/hatebu-galaxy/pkg/partition"
	"github.com/Sternrassler/hatebu-galaxy/pkg/ratelimit"
	"github.com/Sternrassler/hatebu-galaxy/pkg/stars"
	"github.com/Sternrassler/hatebu-galaxy/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	redis      *redis.Client // nil without redis.addr
	objects    storage.ObjectStore
	partitions *partition.Store
	edge       *cache.EdgeCache
	first      storage.FirstBookmarkStore
	client     *hatena.Client
	gatherer   *gather.Gatherer
}

// buildApp connects the backends and wires every component.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Step 1: Redis (throttle state, edge cache, optional object backend)
	if cfg.Redis.Addr != "" {
		opts := storage.DefaultConnectOptions(cfg.Redis.Addr)
		opts.Password = cfg.Redis.Password
		opts.DB = cfg.Redis.DB
		if cfg.Redis.ConnectTimeout > 0 {
			opts.ConnectTimeout = cfg.Redis.ConnectTimeout
		}
		rdb, err := storage.Connect(ctx, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rdb
	}

	// Step 2: Object storage
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		a.objects = storage.NewMemoryStore()
	case config.BackendRedis:
		a.objects = storage.NewRedisStore(a.redis)
	case config.BackendS3:
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		a.objects = storage.NewS3Store(client, cfg.Storage.S3Bucket)
	default:
		a.close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	// Step 3: Partitions behind the edge cache
	var manager *cache.Manager
	if a.redis != nil {
		manager = cache.NewManager(a.redis)
	}
	a.partitions = partition.NewStore(a.objects, partition.DefaultConfig())
	a.edge = cache.NewEdgeCache(manager, a.objects, cfg.Cache.TTL)
	a.partitions.SetInvalidator(a.edge)

	// Step 4: First-bookmark record
	if cfg.Storage.DynamoTable != "" {
		ddb, err := storage.NewDynamoClient(ctx, cfg.Storage.S3Region, cfg.Storage.DynamoEndpoint)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create dynamodb client: %w", err)
		}
		a.first = storage.NewDynamoFirstBookmarkStore(ddb, cfg.Storage.DynamoTable)
	} else {
		a.first = storage.NewObjectFirstBookmarkStore(a.objects)
	}

	// Step 5: Upstream client, throttled through Redis when available
	hcfg := hatena.DefaultConfig(cfg.Upstream.UserAgent)
	hcfg.BookmarkBaseURL = cfg.Upstream.BookmarkBaseURL
	hcfg.StarBaseURL = cfg.Upstream.StarBaseURL
	hcfg.Timeout = cfg.Upstream.Timeout
	hcfg.MaxAttempts = cfg.Upstream.MaxAttempts
	hcfg.InitialBackoff = cfg.Upstream.InitialBackoff
	if a.redis != nil {
		hcfg.Throttle = ratelimit.NewTracker(a.redis, logger)
	}
	client, err := hatena.New(hcfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create hatena client: %w", err)
	}
	a.client = client

	// Step 6: Gatherer
	gcfg := gather.DefaultConfig()
	gcfg.StartupDelay = cfg.Gather.StartupDelay
	gcfg.PageChunk = cfg.Gather.PageChunk
	gcfg.TopUpPages = cfg.Gather.TopUpPages
	gcfg.Pagination = pagination.Config{Timeout: cfg.Gather.PageTimeout}
	gcfg.Stars = stars.DefaultConfig()
	gcfg.Stars.MaxConcurrency = cfg.Gather.StarConcurrency
	a.gatherer = gather.New(client, a.partitions, a.first, gcfg)

	logger.Info().
		Str("storage", cfg.Storage.Backend).
		Bool("redis", a.redis != nil).
		Bool("dynamo", cfg.Storage.DynamoTable != "").
		Msg("Components wired")

	return a, nil
}

// deps builds the API dependencies.
func (a *app) deps(version string) api.Deps {
	return api.Deps{
		Logger:         a.logger.With().Str("component", "api").Logger(),
		StartTime:      time.Now(),
		Version:        version,
		Gatherer:       a.gatherer,
		Objects:        a.objects,
		Files:          a.edge,
		Users:          a.client,
		FirstBookmarks: a.first,
		PageChunk:      a.cfg.Gather.PageChunk,
		MaxPageChunk:   a.cfg.Gather.MaxPageChunk,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Closing redis failed")
		}
	}
}
