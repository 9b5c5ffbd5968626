package dreaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTenantListReturnsItsOwnValues(t *testing.T) {
	list := StaticTenantList{"tenant-a", "tenant-b"}
	ids, err := list.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, ids)
}

func TestStaticTenantListEmpty(t *testing.T) {
	var list StaticTenantList
	ids, err := list.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
