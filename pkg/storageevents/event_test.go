package storageevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEventValid(t *testing.T) {
	ev, err := ParseEvent(RawEvent{
		EventType: "create",
		Path:      "buckets/tenant-1/docs/notes/readme.md",
		Timestamp: float64(1700000000),
		FileSize:  "1024",
	})
	assert.NoError(t, err)
	assert.Equal(t, EventCreate, ev.Type)
	assert.Equal(t, "tenant-1", ev.TenantID)
	assert.Equal(t, "docs", ev.Category)
	assert.Equal(t, "notes/readme.md", ev.FilePath)
	assert.Equal(t, int64(1024), ev.FileSize)
}

func TestParseEventRejectsDirectory(t *testing.T) {
	_, err := ParseEvent(RawEvent{EventType: "create", Path: "buckets/tenant-1/docs/"})
	assert.Error(t, err)
}

func TestParseEventRejectsUnknownType(t *testing.T) {
	_, err := ParseEvent(RawEvent{EventType: "rename", Path: "buckets/tenant-1/docs/a.md"})
	assert.Error(t, err)
}

func TestParseEventRejectsMalformedPath(t *testing.T) {
	_, err := ParseEvent(RawEvent{EventType: "create", Path: "not-a-bucket-path"})
	assert.Error(t, err)
}

func TestBasename(t *testing.T) {
	ev := &Event{FilePath: "notes/sub/readme.md"}
	assert.Equal(t, "readme.md", ev.Basename())

	flat := &Event{FilePath: "readme.md"}
	assert.Equal(t, "readme.md", flat.Basename())
}
