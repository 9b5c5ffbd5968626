// Command storeworker runs the storage-event ingestion worker: it wires
// the storage provider, KV store, embedding service, and an ObjectStore
// together, then drains storage events into durable File/Resource rows
// until interrupted.
//
// Feeding the event Queue itself is an external collaborator's job; this
// process exposes Queue.Push to whatever notification source a deployment
// wires in front of it and focuses on the consume-chunk-embed-upsert path.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/healer-ai/p8fs/internal/healthserver"
	"github.com/healer-ai/p8fs/pkg/config"
	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/ratelimit"
	"github.com/healer-ai/p8fs/pkg/storage"
	"github.com/healer-ai/p8fs/pkg/storageevents"
)

var healthAddr string

func main() {
	root := &cobra.Command{
		Use:   "storeworker",
		Short: "Run the p8fs storage-event ingestion worker",
		RunE:  run,
	}
	root.Flags().StringVar(&healthAddr, "health-addr", ":9090", "gRPC health-check listen address")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := obs.Component("cmd.storeworker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
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

	objects, err := newObjectStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("object store init failed")
	}

	queue := storageevents.NewQueue()
	deadLetter := storageevents.NewMemoryDeadLetterSink()
	worker := storageevents.NewWorker(sp, kv, emb, objects, queue, deadLetter, storageevents.WorkerConfig{
		Bucket:    cfg.ObjectStore.Bucket,
		ChunkSize: storageevents.DefaultChunkSize,
	})
	if cfg.RateLimit.RequestsPerSecond > 0 {
		worker.SetRateLimiter(ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	healthSrv, err := healthserver.Start(healthAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("health server listen failed")
	}
	defer healthSrv.GracefulStop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-done:
		log.Warn().Msg("worker exited unexpectedly")
	}
	cancel()
	queue.Close()
	<-done
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

func newObjectStore(cfg *config.Config) (storageevents.ObjectStore, error) {
	if cfg.ObjectStore.Provider == "minio" {
		return storageevents.NewMinioObjectStore(storageevents.ObjectStoreConfig{
			EndpointURL:     cfg.ObjectStore.EndpointURL,
			Region:          cfg.ObjectStore.Region,
			UseSSL:          cfg.ObjectStore.UseSSL,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		})
	}
	return storageevents.NewLocalObjectStore(cfg.ObjectStore.LocalDir), nil
}
