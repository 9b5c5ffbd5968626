package storageevents

import (
	"context"
	"fmt"
	"strings"

	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/ratelimit"
	"github.com/healer-ai/p8fs/pkg/repository"
	"github.com/healer-ai/p8fs/pkg/retry"
	"github.com/healer-ai/p8fs/pkg/storage"
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// Bucket is the object-store bucket objects are fetched from; the
	// event's own path convention (buckets/{tenant}/{category}/{file}) is a
	// KV/addressing scheme, not necessarily the literal S3 bucket name, so
	// this is configured independently (defaults to "p8fs-content").
	Bucket    string
	ChunkSize int
	Retry     retry.Policy
}

// Worker consumes Queue events, resolves a ContentProvider, fetches object
// bytes, chunks, and upserts File/Resource rows idempotently.
type Worker struct {
	storage    *storage.Provider
	kv         *kvstore.Store
	embeddings *embedding.Service
	objects    ObjectStore
	providers  *ProviderRegistry
	queue      *Queue
	deadLetter DeadLetterSink
	cfg        WorkerConfig
	limiter    *ratelimit.Limiter
}

// SetRateLimiter installs the per-tenant token bucket that throttles the
// embedding calls chunk upserts trigger. Optional.
func (w *Worker) SetRateLimiter(l *ratelimit.Limiter) { w.limiter = l }

// NewWorker constructs a Worker over the shared storage/KV/embedding
// backends, an ObjectStore for byte retrieval, and a Queue to consume from.
func NewWorker(sp *storage.Provider, kv *kvstore.Store, emb *embedding.Service, objects ObjectStore, queue *Queue, deadLetter DeadLetterSink, cfg WorkerConfig) *Worker {
	if cfg.Bucket == "" {
		cfg.Bucket = "p8fs-content"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Worker{
		storage:    sp,
		kv:         kv,
		embeddings: emb,
		objects:    objects,
		providers:  NewProviderRegistry(),
		queue:      queue,
		deadLetter: deadLetter,
		cfg:        cfg,
	}
}

// Providers exposes the worker's registry so callers can Register
// additional ContentProviders before Run starts.
func (w *Worker) Providers() *ProviderRegistry { return w.providers }

// Run pulls events from the queue until ctx is done, processing each with
// retry-then-dead-letter semantics.
func (w *Worker) Run(ctx context.Context) {
	log := obs.Component("storageevents.worker")
	for {
		ev, ok := w.queue.Pop(ctx)
		if !ok {
			return
		}
		unlock := w.queue.LockFile(fileIDFor(ev))
		err := retry.Do(ctx, w.cfg.Retry, func(ctx context.Context) error {
			return w.ProcessEvent(ctx, ev)
		})
		unlock()
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", ev.TenantID).Str("path", ev.FullPath).Msg("event dead-lettered")
			if w.deadLetter != nil {
				w.deadLetter.Put(DeadLetter{Event: ev, Cause: err})
			}
		}
	}
}

func fileIDFor(ev Event) string {
	return model.FileID(ev.TenantID, ev.FullPath)
}

// ProcessEvent runs one event through the full pipeline, idempotently:
// reprocessing the same path yields the same file_id and the same chunk
// resource ids.
func (w *Worker) ProcessEvent(ctx context.Context, ev Event) error {
	if ev.TenantID == "" {
		return errs.Validation("storageevents.ProcessEvent", "event has no tenant_id")
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, ev.TenantID); err != nil {
			return errs.Transient("storageevents.ProcessEvent", "rate limiter wait failed", err)
		}
	}

	files, err := repository.New(w.storage, w.kv, w.embeddings, ev.TenantID, "files")
	if err != nil {
		return err
	}
	resources, err := repository.New(w.storage, w.kv, w.embeddings, ev.TenantID, "resources")
	if err != nil {
		return err
	}

	fileID := fileIDFor(ev)

	if ev.Type == EventDelete {
		return w.processDelete(ctx, files, resources, fileID)
	}
	return w.processUpsert(ctx, files, resources, ev, fileID)
}

func (w *Worker) processUpsert(ctx context.Context, files, resources *repository.Repository, ev Event, fileID string) error {
	provider := w.providers.Resolve(ev.FilePath, ev.ContentType)
	if provider == nil {
		// No provider for this format: record a File row only, no resources.
		return files.Put(ctx, model.File{
			ID:       fileID,
			TenantID: ev.TenantID,
			URI:      ev.FullPath,
			FileSize: ev.FileSize,
			Metadata: map[string]any{"content_type": ev.ContentType, "provider": "none"},
		}.ToEntity())
	}

	raw, err := w.objects.GetObject(ctx, w.cfg.Bucket, objectKey(ev))
	if err != nil {
		return err
	}

	result, err := provider.Produce(raw, ev.ContentType, w.cfg.ChunkSize)
	if err != nil {
		return errs.Validation("storageevents.ProcessEvent", fmt.Sprintf("provider %s failed: %v", provider.Name(), err))
	}

	fileMeta := map[string]any{"content_type": ev.ContentType, "provider": provider.Name(), "chunk_count": len(result.Chunks)}
	for k, v := range result.Metadata {
		fileMeta[k] = v
	}
	if err := files.Put(ctx, model.File{
		ID:       fileID,
		TenantID: ev.TenantID,
		URI:      ev.FullPath,
		FileSize: ev.FileSize,
		Metadata: fileMeta,
	}.ToEntity()); err != nil {
		return err
	}

	basename := ev.Basename()
	entities := make([]model.Entity, 0, len(result.Chunks))
	for i, chunk := range result.Chunks {
		entities = append(entities, model.Resource{
			ID:       model.ChunkResourceID(fileID, i),
			TenantID: ev.TenantID,
			Content:  chunk.Text,
			Category: "content_chunk",
			Ordinal:  i,
			URI:      ev.FullPath,
			Metadata: map[string]any{
				"file_id":     fileID,
				"chunk_index": i,
				"name":        fmt.Sprintf("%s_chunk_%d", basename, i),
			},
		}.ToEntity())
	}
	if len(entities) == 0 {
		return nil
	}
	_, err = resources.Upsert(ctx, entities, true)
	return err
}

func (w *Worker) processDelete(ctx context.Context, files, resources *repository.Repository, fileID string) error {
	if err := files.Delete(ctx, fileID); err != nil {
		return err
	}

	all, err := resources.Select(ctx, nil, "", 0)
	if err != nil {
		return err
	}
	for _, r := range all {
		meta, _ := r["metadata"].(map[string]any)
		if meta == nil {
			continue
		}
		if fid, _ := meta["file_id"].(string); fid == fileID {
			if derr := resources.Delete(ctx, r.ID()); derr != nil {
				return derr
			}
		}
	}
	return nil
}

// objectKey derives the object-store key from an event's path, stripping
// the "buckets/{tenant}/{category}/" addressing prefix since the literal
// object-store bucket is configured separately (WorkerConfig.Bucket).
func objectKey(ev Event) string {
	return strings.TrimPrefix(ev.FullPath, fmt.Sprintf("buckets/%s/%s/", ev.TenantID, ev.Category))
}
