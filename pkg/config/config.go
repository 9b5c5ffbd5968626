// Package config loads typed configuration for p8fs core processes via
// viper, from P8FS_-prefixed environment variables with typed defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig configures the Storage Provider (pkg/storage).
type StorageConfig struct {
	Dialect          string // "postgres" or "tidb"
	DatabaseURL      string
	VectorDimension  int
	MaxOpenConns     int
	MaxUsagePerConn  int
	MaxConnLifetime  time.Duration
}

// KVConfig configures the dual-backed KV store (pkg/kvstore).
type KVConfig struct {
	DurableDatabaseURL string
	RedisAddr          string
	RedisPassword      string
	UseBadgerFallback  bool
	BadgerDir          string
}

// RateLimitConfig configures the per-tenant token bucket (pkg/ratelimit).
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// EmbeddingConfig configures the Embedding Service provider (pkg/embedding).
type EmbeddingConfig struct {
	Provider string // "http", "local", or "" (disabled)
	Endpoint string
	APIKey   string
	Model    string
	Dim      int
}

// ObjectStoreConfig configures the object-store reader the Storage Worker
// resolves bytes from (pkg/storageevents). It has no settings for a bucket
// notification listener; nothing in this module feeds the event Queue.
type ObjectStoreConfig struct {
	Provider        string // "minio" or "local"
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
	Bucket          string
}

// TenantsConfig supplies the static tenant list the Dreaming Worker ticks
// over; tenant enumeration is a deployment-supplied concern (see
// pkg/dreaming.TenantLister).
type TenantsConfig struct {
	IDs []string
}

// DreamingConfig configures the Dreaming Worker (pkg/dreaming).
type DreamingConfig struct {
	Enabled             bool
	TickInterval        time.Duration
	AnthropicAPIKey     string
	AnthropicModel      string
	MaxConcurrentTenants int
	SMTPAddr            string
	SMTPFrom            string
	DigestEnabled       bool
	CommunityEnabled    bool
}

// Config is the root configuration for all p8fs core processes.
type Config struct {
	Storage     StorageConfig
	KV          KVConfig
	RateLimit   RateLimitConfig
	Dreaming    DreamingConfig
	Embedding   EmbeddingConfig
	ObjectStore ObjectStoreConfig
	Tenants     TenantsConfig
}

// Load reads configuration from environment variables (P8FS_ prefix), with
// typed defaults for everything a local deployment can run on.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("P8FS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage.dialect", "postgres")
	v.SetDefault("storage.vector_dimension", 1536)
	v.SetDefault("storage.max_open_conns", 20)
	v.SetDefault("storage.max_usage_per_conn", 10000)
	v.SetDefault("storage.max_conn_lifetime", "30m")
	v.SetDefault("kv.use_badger_fallback", true)
	v.SetDefault("kv.badger_dir", "./data/kv-fast")
	v.SetDefault("ratelimit.requests_per_second", 50.0)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("dreaming.enabled", true)
	v.SetDefault("dreaming.tick_interval", "5m")
	v.SetDefault("dreaming.anthropic_model", "claude-3-haiku-20240307")
	v.SetDefault("dreaming.max_concurrent_tenants", 4)
	v.SetDefault("dreaming.digest_enabled", false)
	v.SetDefault("dreaming.community_enabled", false)
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.dim", 1536)
	v.SetDefault("objectstore.provider", "local")
	v.SetDefault("objectstore.local_dir", "./data/objects")
	v.SetDefault("objectstore.bucket", "p8fs-content")

	lifetime, err := time.ParseDuration(v.GetString("storage.max_conn_lifetime"))
	if err != nil {
		lifetime = 30 * time.Minute
	}
	tick, err := time.ParseDuration(v.GetString("dreaming.tick_interval"))
	if err != nil {
		tick = 5 * time.Minute
	}

	cfg := &Config{
		Storage: StorageConfig{
			Dialect:         v.GetString("storage.dialect"),
			DatabaseURL:     v.GetString("storage.database_url"),
			VectorDimension: v.GetInt("storage.vector_dimension"),
			MaxOpenConns:    v.GetInt("storage.max_open_conns"),
			MaxUsagePerConn: v.GetInt("storage.max_usage_per_conn"),
			MaxConnLifetime: lifetime,
		},
		KV: KVConfig{
			DurableDatabaseURL: v.GetString("kv.durable_database_url"),
			RedisAddr:          v.GetString("kv.redis_addr"),
			RedisPassword:      v.GetString("kv.redis_password"),
			UseBadgerFallback:  v.GetBool("kv.use_badger_fallback"),
			BadgerDir:          v.GetString("kv.badger_dir"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("ratelimit.requests_per_second"),
			Burst:             v.GetInt("ratelimit.burst"),
		},
		Dreaming: DreamingConfig{
			Enabled:              v.GetBool("dreaming.enabled"),
			TickInterval:         tick,
			AnthropicAPIKey:      v.GetString("dreaming.anthropic_api_key"),
			AnthropicModel:       v.GetString("dreaming.anthropic_model"),
			MaxConcurrentTenants: v.GetInt("dreaming.max_concurrent_tenants"),
			SMTPAddr:             v.GetString("dreaming.smtp_addr"),
			SMTPFrom:             v.GetString("dreaming.smtp_from"),
			DigestEnabled:        v.GetBool("dreaming.digest_enabled"),
			CommunityEnabled:     v.GetBool("dreaming.community_enabled"),
		},
		Embedding: EmbeddingConfig{
			Provider: v.GetString("embedding.provider"),
			Endpoint: v.GetString("embedding.endpoint"),
			APIKey:   v.GetString("embedding.api_key"),
			Model:    v.GetString("embedding.model"),
			Dim:      v.GetInt("embedding.dim"),
		},
		ObjectStore: ObjectStoreConfig{
			Provider:        v.GetString("objectstore.provider"),
			EndpointURL:     v.GetString("objectstore.endpoint_url"),
			Region:          v.GetString("objectstore.region"),
			UseSSL:          v.GetBool("objectstore.use_ssl"),
			AccessKeyID:     v.GetString("objectstore.access_key_id"),
			SecretAccessKey: v.GetString("objectstore.secret_access_key"),
			LocalDir:        v.GetString("objectstore.local_dir"),
			Bucket:          v.GetString("objectstore.bucket"),
		},
		Tenants: TenantsConfig{
			IDs: splitNonEmpty(v.GetString("tenants.ids")),
		},
	}
	return cfg, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
