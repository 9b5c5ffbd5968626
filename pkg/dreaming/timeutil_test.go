package dreaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRowTimeFromTimeTime(t *testing.T) {
	now := time.Now()
	got, ok := rowTime(now)
	assert.True(t, ok)
	assert.Equal(t, now, got)
}

func TestRowTimeFromRFC3339String(t *testing.T) {
	got, ok := rowTime("2024-03-18T08:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.Month(3), got.Month())
}

func TestRowTimeEmptyStringIsNotOK(t *testing.T) {
	_, ok := rowTime("")
	assert.False(t, ok)
}

func TestRowTimeMalformedStringIsNotOK(t *testing.T) {
	_, ok := rowTime("not-a-time")
	assert.False(t, ok)
}

func TestRowTimeUnsupportedTypeIsNotOK(t *testing.T) {
	_, ok := rowTime(42)
	assert.False(t, ok)
}

func TestRowStringAsserts(t *testing.T) {
	assert.Equal(t, "hi", rowString("hi"))
	assert.Equal(t, "", rowString(42))
	assert.Equal(t, "", rowString(nil))
}
