package dreaming

import (
	"context"
	"sync"
	"time"

	"github.com/healer-ai/p8fs/pkg/config"
	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/entity"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/ratelimit"
	"github.com/healer-ai/p8fs/pkg/repository"
	"github.com/healer-ai/p8fs/pkg/storage"
)

// DefaultLookback is the activity window every sub-pipeline scans by default.
const DefaultLookback = 6 * time.Hour

// TenantLister supplies the tenant IDs a Runner tick should process.
// Runner does not itself run an unscoped cross-tenant query
// (pkg/repository enforces tenant_id on every read); the caller wires in
// whatever tenant source its deployment uses (a config list, a
// control-plane API, or a raw admin query against the tenants table).
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}

// StaticTenantList is the simplest TenantLister: a fixed slice, useful for
// single-tenant deployments and tests.
type StaticTenantList []string

func (s StaticTenantList) ListTenantIDs(ctx context.Context) ([]string, error) { return []string(s), nil }

// Runner orchestrates the dreaming sub-pipelines on a ticker, bounding
// concurrency to config.Dreaming.MaxConcurrentTenants and recording one Job
// row per tenant invocation via the jobs descriptor.
type Runner struct {
	storage *storage.Provider
	kv      *kvstore.Store
	emb     *embedding.Service
	llm     *LLM
	tenants TenantLister
	cfg     config.DreamingConfig
	limiter *ratelimit.Limiter

	entityRegistry entity.Registry
	entities       *EntityPipeline

	affinityCfg AffinityConfig
	digestCfg   DigestConfig
	lookback    time.Duration
}

// NewRunner wires a Runner from its backends and config. entityRegistry may
// be nil to disable the entity-extraction sub-pipeline (e.g. when no
// *sql.DB-backed registry has been constructed for this deployment).
func NewRunner(sp *storage.Provider, kv *kvstore.Store, emb *embedding.Service, tenants TenantLister, cfg config.DreamingConfig, entityRegistry entity.Registry) (*Runner, error) {
	llm, err := NewLLM(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		storage:        sp,
		kv:             kv,
		emb:            emb,
		llm:            llm,
		tenants:        tenants,
		cfg:            cfg,
		entityRegistry: entityRegistry,
		affinityCfg:    DefaultAffinityConfig(),
		digestCfg: DigestConfig{
			Enabled:  cfg.DigestEnabled,
			SMTPAddr: cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
		},
		lookback: DefaultLookback,
	}
	if entityRegistry != nil {
		r.entities = NewEntityPipeline(llm, entityRegistry)
	}
	return r, nil
}

// SetRateLimiter installs the per-tenant token bucket that throttles
// LLM/embedding calls. Optional: a Runner with no limiter set runs
// unthrottled, which is fine for single-tenant or test deployments.
func (r *Runner) SetRateLimiter(l *ratelimit.Limiter) { r.limiter = l }

// Run blocks until ctx is canceled, invoking Tick every cfg.TickInterval. A
// disabled config (cfg.Enabled == false) returns immediately.
func (r *Runner) Run(ctx context.Context) error {
	if !r.cfg.Enabled {
		return nil
	}
	interval := r.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one pass over every tenant TenantLister reports, bounding
// concurrency to cfg.MaxConcurrentTenants.
func (r *Runner) Tick(ctx context.Context) {
	log := obs.Component("dreaming.runner")

	tenantIDs, err := r.tenants.ListTenantIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("tenant listing failed, skipping tick")
		return
	}

	maxConcurrent := r.cfg.MaxConcurrentTenants
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, tenantID := range tenantIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(tenantID string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.processTenant(ctx, tenantID)
		}(tenantID)
	}
	wg.Wait()
}

// processTenant runs every enabled sub-pipeline for one tenant, moment
// extraction strictly before resource affinity so affinity sees the new
// moments' resources. Each invocation is tracked as one "jobs" row through
// pending->running->completed|failed.
func (r *Runner) processTenant(ctx context.Context, tenantID string) {
	log := obs.WithTenant(obs.Component("dreaming.runner"), tenantID)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, tenantID); err != nil {
			log.Warn().Err(err).Msg("rate limiter wait failed, skipping tenant")
			return
		}
	}

	leaseTTL := r.cfg.TickInterval
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	acquired, err := r.kv.AcquireLease(ctx, tenantID, "dreaming", leaseTTL)
	if err != nil {
		log.Warn().Err(err).Msg("lease acquisition failed, skipping tenant")
		return
	}
	if !acquired {
		log.Debug().Msg("dreaming lease held elsewhere, skipping tenant")
		return
	}
	defer func() {
		if err := r.kv.ReleaseLease(ctx, tenantID, "dreaming"); err != nil {
			log.Warn().Err(err).Msg("lease release failed, will expire by TTL")
		}
	}()

	jobs, err := repository.New(r.storage, r.kv, r.emb, tenantID, "jobs")
	if err != nil {
		log.Warn().Err(err).Msg("could not open jobs repository, skipping tenant")
		return
	}
	jobID, err := r.startJob(ctx, jobs)
	if err != nil {
		log.Warn().Err(err).Msg("job row creation failed, skipping tenant")
		return
	}

	sp := &storageProviders{Storage: r.storage, KV: r.kv, Embeddings: r.emb}
	result := map[string]any{}
	var firstErr error

	moments, err := ExtractMoments(ctx, sp, tenantID, r.lookback, r.llm, DefaultTokenBudget())
	result["moments_written"] = moments
	if err != nil {
		log.Warn().Err(err).Msg("moment extraction failed")
		firstErr = err
	}

	affinities, err := BuildAffinity(ctx, sp, tenantID, r.lookback, r.llm, r.affinityCfg)
	result["affinities_written"] = affinities
	if err != nil {
		log.Warn().Err(err).Msg("resource affinity failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	if r.entities != nil {
		processed, err := r.entities.ExtractEntities(ctx, sp, tenantID, r.lookback)
		result["entities_processed"] = processed
		if err != nil {
			log.Warn().Err(err).Msg("entity extraction failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := BuildUserSummary(ctx, sp, tenantID, r.lookback, r.llm); err != nil {
		log.Warn().Err(err).Msg("user summary failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	if r.cfg.CommunityEnabled {
		stamped, err := DetectCommunities(ctx, sp, tenantID, r.lookback, r.llm)
		result["communities_stamped"] = stamped
		if err != nil {
			log.Warn().Err(err).Msg("community detection failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := SendDigest(ctx, sp, tenantID, r.lookback, r.digestCfg); err != nil {
		log.Warn().Err(err).Msg("digest send failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	r.finishJob(ctx, jobs, jobID, result, firstErr)
}

func (r *Runner) startJob(ctx context.Context, jobs *repository.Repository) (string, error) {
	now := time.Now().UTC()
	e := model.Entity{
		"pipeline":   "dreaming",
		"status":     "pending",
		"started_at": now,
	}
	if _, err := jobs.Upsert(ctx, []model.Entity{e}, false); err != nil {
		return "", err
	}
	e["status"] = "running"
	summary, err := jobs.Upsert(ctx, []model.Entity{e}, false)
	if err != nil {
		return "", err
	}
	return summary.IDs[0], nil
}

func (r *Runner) finishJob(ctx context.Context, jobs *repository.Repository, jobID string, result map[string]any, runErr error) {
	log := obs.Component("dreaming.runner")
	status := "completed"
	if runErr != nil {
		status = "failed"
		result["error"] = runErr.Error()
	}
	e, err := jobs.Get(ctx, jobID)
	if err != nil || e == nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job row lookup failed, cannot record completion")
		return
	}
	e["status"] = status
	e["result"] = result
	e["finished_at"] = time.Now().UTC()
	if _, err := jobs.Upsert(ctx, []model.Entity{e}, false); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job completion write failed")
	}
}
