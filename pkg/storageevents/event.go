// Package storageevents implements the content-event queue and storage
// worker: object-store change events, dispatched to a content provider,
// chunked, embedded, and persisted as idempotent File/Resource rows.
package storageevents

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// EventType is the object-store change kind.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// RawEvent is the wire shape of one object-store notification:
// {event_type, path, timestamp, file_size, content_type?, etag?}. Timestamp
// and FileSize accept either JSON numbers or strings, since upstream
// notification sources disagree on which they emit.
type RawEvent struct {
	EventType   string `json:"event_type"`
	Path        string `json:"path"`
	Timestamp   any    `json:"timestamp"`
	FileSize    any    `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`
	ETag        string `json:"etag,omitempty"`
}

// Event is the parsed, validated form of a RawEvent.
type Event struct {
	Type        EventType
	TenantID    string
	Category    string
	FilePath    string // path relative to bucket/tenant/category
	FullPath    string // the full object-store path, used as the uuid5 seed
	Timestamp   time.Time
	FileSize    int64
	ContentType string
	ETag        string
}

// ParseEvent validates and normalizes a RawEvent: the path must match
// buckets/{tenant_id}/{category}/{file_path}; directories (paths ending in
// "/", or with no file_path segment) are rejected; any parse failure is a
// permanent Validation error.
func ParseEvent(raw RawEvent) (*Event, error) {
	switch EventType(raw.EventType) {
	case EventCreate, EventUpdate, EventDelete:
	default:
		return nil, errs.Validation("storageevents.ParseEvent", fmt.Sprintf("unknown event_type %q", raw.EventType))
	}
	if strings.HasSuffix(raw.Path, "/") {
		return nil, errs.Validation("storageevents.ParseEvent", fmt.Sprintf("path %q is a directory", raw.Path))
	}
	parts := strings.SplitN(raw.Path, "/", 4)
	if len(parts) != 4 || parts[0] != "buckets" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return nil, errs.Validation("storageevents.ParseEvent", fmt.Sprintf("path %q does not match buckets/{tenant_id}/{category}/{file_path}", raw.Path))
	}

	ts, err := coerceTimestamp(raw.Timestamp)
	if err != nil {
		return nil, errs.Validation("storageevents.ParseEvent", fmt.Sprintf("malformed timestamp: %v", err))
	}
	size, err := coerceInt(raw.FileSize)
	if err != nil {
		return nil, errs.Validation("storageevents.ParseEvent", fmt.Sprintf("malformed file_size: %v", err))
	}

	return &Event{
		Type:        EventType(raw.EventType),
		TenantID:    parts[1],
		Category:    parts[2],
		FilePath:    parts[3],
		FullPath:    raw.Path,
		Timestamp:   ts,
		FileSize:    size,
		ContentType: raw.ContentType,
		ETag:        raw.ETag,
	}, nil
}

func coerceTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(f), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func coerceInt(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// Basename returns the final path segment of FilePath, used to name
// derived Resource chunks ("<basename>_chunk_<i>").
func (e *Event) Basename() string {
	idx := strings.LastIndexByte(e.FilePath, '/')
	if idx < 0 {
		return e.FilePath
	}
	return e.FilePath[idx+1:]
}
