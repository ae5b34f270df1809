package plumbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowIDRoundTrip(t *testing.T) {
	id := RowID("primary", 0)
	assert.Equal(t, "primary:0", id)
	key, index, err := SplitRowID(id)
	assert.NoError(t, err)
	assert.Equal(t, "primary", key)
	assert.Equal(t, int64(0), index)

	key, index, err = SplitRowID("Sheet 1:1048575")
	assert.NoError(t, err)
	assert.Equal(t, "Sheet 1", key)
	assert.Equal(t, int64(1048575), index)
}

func TestSplitRowIDRejects(t *testing.T) {
	for _, id := range []string{"", "primary", ":0", "primary:", "primary:x", "0primary:1", "primary:1:"} {
		_, _, err := SplitRowID(id)
		assert.True(t, IsErrBadRowID(err), "id %q", id)
	}
}

func TestValidateTableKey(t *testing.T) {
	for _, key := range []string{"primary", "Sheet 1", "_hidden", "a-b_c", "A"} {
		assert.True(t, ValidateTableKey(key), "key %q", key)
	}
	for _, key := range []string{"", "1table", " lead", "tab:le", "tab.le", string(make([]byte, 80))} {
		assert.False(t, ValidateTableKey(key), "key %q", key)
	}
}

func TestValidateRefName(t *testing.T) {
	for _, name := range []string{"main", "feature/x", "v1.2.3", "release-2025"} {
		assert.True(t, ValidateRefName(name), "name %q", name)
	}
	for _, name := range []string{"", "-lead", ".hidden", "a..b", "a.lock", "sp ace"} {
		assert.False(t, ValidateRefName(name), "name %q", name)
	}
}
