package model

import "sync"

// Registry maps table names to their Descriptor. The registry is
// process-wide, populated once at startup via init() registration of the
// descriptors below, and frozen thereafter. (pkg/rem's untyped-LOOKUP
// fallback does not consult it; it scans kvstore.Store.KnownEntityTypes.)
type Registry struct {
	mu    sync.RWMutex
	byTbl map[string]Descriptor
}

var global = &Registry{byTbl: make(map[string]Descriptor)}

// Register adds a Descriptor to the global registry. Called from this
// package's init() for every built-in model; application code may call it
// for additional auxiliary models.
func Register(d Descriptor) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.byTbl[d.Table] = d
}

// Get looks up a Descriptor by table name.
func Get(table string) (Descriptor, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	d, ok := global.byTbl[table]
	return d, ok
}

// Tables returns all registered table names, in no particular order. Used
// by storage.Provider.EnsureSchema to create every model's tables.
func Tables() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]string, 0, len(global.byTbl))
	for t := range global.byTbl {
		out = append(out, t)
	}
	return out
}

// EntityTypes returns the distinct non-empty entity_type values of all
// registered descriptors, whether or not they set HasRelatedEntities.
func EntityTypes() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, d := range global.byTbl {
		if d.EntityType == "" || seen[d.EntityType] {
			continue
		}
		seen[d.EntityType] = true
		out = append(out, d.EntityType)
	}
	return out
}

func init() {
	Register(Descriptor{
		Table:      "resources",
		EntityType: "resource",
		KeyField:   "id",
		Fields: []Field{
			{Name: "id", Type: FieldString},
			{Name: "tenant_id", Type: FieldString},
			{Name: "content", Type: FieldString, Embed: true, VectorDim: 1536},
			{Name: "summary", Type: FieldString, Nullable: true},
			{Name: "category", Type: FieldString, Nullable: true},
			{Name: "ordinal", Type: FieldInt, Nullable: true},
			{Name: "uri", Type: FieldString, Nullable: true},
			{Name: "resource_timestamp", Type: FieldTimestamp, Nullable: true},
			{Name: "metadata", Type: FieldJSON, Nullable: true},
			{Name: "related_entities", Type: FieldJSON, Nullable: true},
			{Name: "graph_edges", Type: FieldJSON, Nullable: true},
			{Name: "created_at", Type: FieldTimestamp},
			{Name: "updated_at", Type: FieldTimestamp},
		},
		HasRelatedEntities: true,
		HasGraphEdges:      true,
	})

	Register(Descriptor{
		Table:      "files",
		EntityType: "file",
		KeyField:   "id",
		Fields: []Field{
			{Name: "id", Type: FieldString},
			{Name: "tenant_id", Type: FieldString},
			{Name: "uri", Type: FieldString},
			{Name: "file_size", Type: FieldInt, Nullable: true},
			{Name: "metadata", Type: FieldJSON, Nullable: true},
			{Name: "created_at", Type: FieldTimestamp},
			{Name: "updated_at", Type: FieldTimestamp},
		},
	})

	Register(Descriptor{
		Table:      "sessions",
		EntityType: "session",
		KeyField:   "id",
		Fields: []Field{
			{Name: "id", Type: FieldString},
			{Name: "tenant_id", Type: FieldString},
			{Name: "name", Type: FieldString, Nullable: true},
			{Name: "query", Type: FieldString, Nullable: true},
			{Name: "session_type", Type: FieldString},
			{Name: "metadata", Type: FieldJSON, Nullable: true},
			{Name: "created_at", Type: FieldTimestamp},
			{Name: "updated_at", Type: FieldTimestamp},
		},
	})

	Register(Descriptor{
		Table:      "moments",
		EntityType: "moment",
		KeyField:   "id",
		Fields: []Field{
			{Name: "id", Type: FieldString},
			{Name: "tenant_id", Type: FieldString},
			{Name: "name", Type: FieldString},
			{Name: "content", Type: FieldString, Embed: true, VectorDim: 1536},
			{Name: "summary", Type: FieldString, Nullable: true},
			{Name: "resource_timestamp", Type: FieldTimestamp},
			{Name: "resource_ends_timestamp", Type: FieldTimestamp, Nullable: true},
			{Name: "moment_type", Type: FieldString},
			{Name: "emotion_tags", Type: FieldJSON, Nullable: true},
			{Name: "topic_tags", Type: FieldJSON, Nullable: true},
			{Name: "present_persons", Type: FieldJSON, Nullable: true},
			{Name: "location", Type: FieldString, Nullable: true},
			{Name: "created_at", Type: FieldTimestamp},
			{Name: "updated_at", Type: FieldTimestamp},
		},
	})

	// Auxiliary models; the same generic machinery applies.
	Register(Descriptor{Table: "agents", EntityType: "agent", KeyField: "id", Fields: auxFields(
		Field{Name: "name", Type: FieldString},
		Field{Name: "description", Type: FieldString, Nullable: true},
		Field{Name: "config", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "functions", EntityType: "function", KeyField: "id", Fields: auxFields(
		Field{Name: "name", Type: FieldString},
		Field{Name: "signature", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "language_model_apis", EntityType: "language_model_api", KeyField: "id", Fields: auxFields(
		Field{Name: "provider", Type: FieldString},
		Field{Name: "model", Type: FieldString},
		Field{Name: "config", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "tenants", EntityType: "tenant", KeyField: "id", Fields: auxFields(
		Field{Name: "name", Type: FieldString},
		Field{Name: "metadata", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "users", EntityType: "user", KeyField: "id", Fields: auxFields(
		Field{Name: "email", Type: FieldString},
		Field{Name: "display_name", Type: FieldString, Nullable: true},
	)})

	Register(Descriptor{Table: "errors", EntityType: "error", KeyField: "id", Fields: auxFields(
		Field{Name: "op", Type: FieldString},
		Field{Name: "kind", Type: FieldString},
		Field{Name: "message", Type: FieldString},
		Field{Name: "context", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "jobs", EntityType: "job", KeyField: "id", Fields: auxFields(
		Field{Name: "pipeline", Type: FieldString},
		Field{Name: "status", Type: FieldString}, // pending|running|completed|failed
		Field{Name: "result", Type: FieldJSON, Nullable: true},
		Field{Name: "started_at", Type: FieldTimestamp, Nullable: true},
		Field{Name: "finished_at", Type: FieldTimestamp, Nullable: true},
	)})

	Register(Descriptor{Table: "tasks", EntityType: "task", KeyField: "id", Fields: auxFields(
		Field{Name: "job_id", Type: FieldString},
		Field{Name: "status", Type: FieldString},
		Field{Name: "payload", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "api_proxies", EntityType: "api_proxy", KeyField: "id", Fields: auxFields(
		Field{Name: "upstream", Type: FieldString},
		Field{Name: "config", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "projects", EntityType: "project", KeyField: "id", Fields: auxFields(
		Field{Name: "name", Type: FieldString},
		Field{Name: "metadata", Type: FieldJSON, Nullable: true},
	)})

	Register(Descriptor{Table: "token_usages", EntityType: "token_usage", KeyField: "id", Fields: auxFields(
		Field{Name: "model", Type: FieldString},
		Field{Name: "prompt_tokens", Type: FieldInt},
		Field{Name: "completion_tokens", Type: FieldInt},
		Field{Name: "cost_usd", Type: FieldFloat, Nullable: true},
	)})

	Register(Descriptor{Table: "kv_storages", EntityType: "kv_storage", KeyField: "id", Fields: auxFields(
		Field{Name: "key", Type: FieldString},
		Field{Name: "value", Type: FieldJSON, Nullable: true},
	)})
}

// auxFields prepends the universal id/tenant_id/created_at/updated_at columns
// shared by every model ((tenant_id, id) is the logical primary key for
// every core table) to a model-specific field list.
func auxFields(extra ...Field) []Field {
	base := []Field{
		{Name: "id", Type: FieldString},
		{Name: "tenant_id", Type: FieldString},
	}
	base = append(base, extra...)
	base = append(base,
		Field{Name: "created_at", Type: FieldTimestamp},
		Field{Name: "updated_at", Type: FieldTimestamp},
	)
	return base
}
