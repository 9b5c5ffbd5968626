package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentAnnotatesComponentName(t *testing.T) {
	var buf bytes.Buffer
	l := Component("repository").Output(&buf)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "repository", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithTenantAnnotatesTenantID(t *testing.T) {
	var buf bytes.Buffer
	l := WithTenant(Component("dreaming.moments"), "tenant-a").Output(&buf)
	l.Warn().Msg("low budget")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tenant-a", entry["tenant_id"])
	assert.Equal(t, "dreaming.moments", entry["component"])
}
