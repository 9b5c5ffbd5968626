package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Entity is the generic row representation passed through pkg/storage and
// pkg/repository. It is intentionally an opaque map at the storage boundary,
// so free-form JSON metadata round-trips without loss; typed structs
// below (Resource, File, Session, Moment) are convenience views over it for
// the packages that need named-field access (pkg/storageevents, pkg/dreaming).
type Entity map[string]any

func (e Entity) TenantID() string {
	v, _ := e["tenant_id"].(string)
	return v
}

func (e Entity) ID() string {
	v, _ := e["id"].(string)
	return v
}

// RelatedEntity is one entry of a Resource's related_entities list.
type RelatedEntity struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	EntityName string  `json:"entity_name"`
	Mentions   int     `json:"mentions"`
	Confidence float64 `json:"confidence"`
}

// GraphEdge is one entry of a Resource's graph_edges list, walked by
// REM's TRAVERSE.
type GraphEdge struct {
	TargetID string  `json:"target_id"`
	Weight   float64 `json:"weight"`
	Kind     string  `json:"kind"`
}

// Resource is the atomic content-bearing entity: a chunk or a summary.
type Resource struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	Content           string          `json:"content"`
	Summary           string          `json:"summary,omitempty"`
	Category          string          `json:"category,omitempty"`
	Ordinal           int             `json:"ordinal,omitempty"`
	URI               string          `json:"uri,omitempty"`
	ResourceTimestamp string          `json:"resource_timestamp,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	RelatedEntities   []RelatedEntity `json:"related_entities,omitempty"`
	GraphEdges        []GraphEdge     `json:"graph_edges,omitempty"`
}

func (r Resource) ToEntity() Entity {
	return Entity{
		"id":                 r.ID,
		"tenant_id":          r.TenantID,
		"content":            r.Content,
		"summary":            r.Summary,
		"category":           r.Category,
		"ordinal":            r.Ordinal,
		"uri":                r.URI,
		"resource_timestamp": r.ResourceTimestamp,
		"metadata":           r.Metadata,
		"related_entities":   r.RelatedEntities,
		"graph_edges":        r.GraphEdges,
	}
}

// File is a source artifact descriptor.
type File struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	URI      string         `json:"uri"`
	FileSize int64          `json:"file_size"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (f File) ToEntity() Entity {
	return Entity{
		"id":        f.ID,
		"tenant_id": f.TenantID,
		"uri":       f.URI,
		"file_size": f.FileSize,
		"metadata":  f.Metadata,
	}
}

// FileID computes the deterministic file id: uuid5(DNS, tenant_id + ":" + uri).
// Reprocessing the same path always lands on the same File row.
func FileID(tenantID, uri string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(tenantID+":"+uri)).String()
}

// ChunkResourceID computes the deterministic chunk id: uuid5(file_id, i).
// file_id is used directly as the uuid5 namespace since it is itself a
// valid UUID, so re-chunking a file yields the same resource ids.
func ChunkResourceID(fileID string, index int) string {
	ns, err := uuid.Parse(fileID)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fileID))
	}
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("%d", index))).String()
}

// Session is a conversation header.
type Session struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name,omitempty"`
	Query       string         `json:"query,omitempty"`
	SessionType string         `json:"session_type"` // "chat" | "internal"
	Metadata    map[string]any `json:"metadata,omitempty"`
}

const (
	SessionTypeChat     = "chat"
	SessionTypeInternal = "internal"
)

// Moment is a dreaming-derived interpretive event over one or more
// resources or sessions.
type Moment struct {
	ID                    string            `json:"id"`
	TenantID              string            `json:"tenant_id"`
	Name                  string            `json:"name"`
	Content               string            `json:"content"`
	Summary               string            `json:"summary,omitempty"`
	ResourceTimestamp     string            `json:"resource_timestamp"`
	ResourceEndsTimestamp string            `json:"resource_ends_timestamp,omitempty"`
	MomentType            string            `json:"moment_type"`
	EmotionTags           []string          `json:"emotion_tags,omitempty"`
	TopicTags             []string          `json:"topic_tags,omitempty"`
	PresentPersons        map[string]string `json:"present_persons,omitempty"`
	Location              string            `json:"location,omitempty"`
}

func (m Moment) ToEntity() Entity {
	return Entity{
		"id":                       m.ID,
		"tenant_id":                m.TenantID,
		"name":                     m.Name,
		"content":                  m.Content,
		"summary":                  m.Summary,
		"resource_timestamp":       m.ResourceTimestamp,
		"resource_ends_timestamp":  m.ResourceEndsTimestamp,
		"moment_type":              m.MomentType,
		"emotion_tags":             m.EmotionTags,
		"topic_tags":               m.TopicTags,
		"present_persons":          m.PresentPersons,
		"location":                 m.Location,
	}
}
