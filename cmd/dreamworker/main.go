// Command dreamworker runs the dreaming worker: a periodic, tenant-scoped
// pipeline runner performing moment extraction, resource affinity, entity
// extraction, user summarization, and digest dispatch.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/healer-ai/p8fs/internal/healthserver"
	"github.com/healer-ai/p8fs/pkg/config"
	"github.com/healer-ai/p8fs/pkg/dreaming"
	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/entity"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/ratelimit"
	"github.com/healer-ai/p8fs/pkg/storage"
)

var healthAddr string

func main() {
	root := &cobra.Command{
		Use:   "dreamworker",
		Short: "Run the p8fs dreaming worker",
		RunE:  run,
	}
	root.Flags().StringVar(&healthAddr, "health-addr", ":9091", "gRPC health-check listen address")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := obs.Component("cmd.dreamworker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if len(cfg.Tenants.IDs) == 0 {
		log.Warn().Msg("no tenants configured (P8FS_TENANTS_IDS); every tick will be a no-op")
	}

	sp, err := storage.Open(cfg.Storage.Dialect, cfg.Storage.DatabaseURL, storage.PoolConfig{
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxUsagePerConn: cfg.Storage.MaxUsagePerConn,
		MaxConnLifetime: cfg.Storage.MaxConnLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	defer sp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sp.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema ensure failed")
	}

	kv, err := newKVStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("kv store init failed")
	}

	emb := newEmbeddingService(cfg)

	registry, err := newEntityRegistry(ctx, sp, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("entity registry unavailable, entity-extraction sub-pipeline disabled")
		registry = nil
	}

	runner, err := dreaming.NewRunner(sp, kv, emb, dreaming.StaticTenantList(cfg.Tenants.IDs), cfg.Dreaming, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("dreaming runner init failed")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		runner.SetRateLimiter(ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	healthSrv, err := healthserver.Start(healthAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("health server listen failed")
	}
	defer healthSrv.GracefulStop()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("runner exited")
		}
	}
	return nil
}

func newKVStore(cfg *config.Config) (*kvstore.Store, error) {
	durable, err := kvstore.NewSQLDurable(cfg.Storage.Dialect, cfg.KV.DurableDatabaseURL)
	if err != nil {
		return nil, err
	}
	var fast kvstore.Fast
	if cfg.KV.RedisAddr != "" {
		fast = kvstore.NewRedisFast(cfg.KV.RedisAddr, cfg.KV.RedisPassword)
	} else if cfg.KV.UseBadgerFallback {
		bf, err := kvstore.NewBadgerFast(cfg.KV.BadgerDir)
		if err != nil {
			return nil, err
		}
		fast = bf
	}
	return kvstore.New(durable, fast), nil
}

func newEmbeddingService(cfg *config.Config) *embedding.Service {
	switch cfg.Embedding.Provider {
	case "http":
		return embedding.NewService(embedding.NewHTTPProvider(cfg.Embedding.Endpoint, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dim))
	case "local":
		return embedding.NewService(embedding.NewLocalProvider(cfg.Embedding.Dim))
	default:
		return embedding.NewService(nil)
	}
}

// newEntityRegistry wires the canonical entity registry when the storage
// dialect is Postgres; the registry's DDL and placeholders are
// Postgres-shaped, so TiDB deployments run with entity extraction disabled
// rather than against mismatched SQL.
func newEntityRegistry(ctx context.Context, sp *storage.Provider, cfg *config.Config) (entity.Registry, error) {
	if cfg.Storage.Dialect != "postgres" {
		return nil, nil
	}
	db, err := sp.RawDB(ctx)
	if err != nil {
		return nil, err
	}
	return entity.NewPostgresRegistry(db)
}
