package storageevents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalObjectStorePutGet(t *testing.T) {
	store := NewLocalObjectStore(t.TempDir())
	ctx := context.Background()

	assert.NoError(t, store.PutObject(ctx, "bucket", "tenant/docs/a.md", []byte("hello")))

	data, err := store.GetObject(ctx, "bucket", "tenant/docs/a.md")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestLocalObjectStoreMissingKey(t *testing.T) {
	store := NewLocalObjectStore(t.TempDir())
	_, err := store.GetObject(context.Background(), "bucket", "missing")
	assert.Error(t, err)
}

func TestLocalObjectStoreRequiresBucketAndKey(t *testing.T) {
	store := NewLocalObjectStore(t.TempDir())
	_, err := store.GetObject(context.Background(), "", "key")
	assert.Error(t, err)
}
