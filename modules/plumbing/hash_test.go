package plumbing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestBytes(t *testing.T) {
	// sha256 of the empty string, a fixed point any implementation must agree on
	h := DigestBytes(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.String())
	assert.False(t, h.IsZero())
	assert.True(t, ZeroHash.IsZero())
	assert.Equal(t, ZERO_OID, ZeroHash.String())
}

func TestNewHashEx(t *testing.T) {
	hex := DigestBytes([]byte("x")).String()
	h, err := NewHashEx(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, h.String())

	for _, s := range []string{"", "abc", hex[:HASH_HEX_SIZE-1], hex + "0", "G" + hex[1:]} {
		_, err := NewHashEx(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestHashJSON(t *testing.T) {
	h := DigestBytes([]byte("y"))
	b, err := json.Marshal(h)
	require.NoError(t, err)
	var back Hash
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, h, back)
}

func TestValidateHashHex(t *testing.T) {
	assert.True(t, ValidateHashHex(DigestBytes([]byte("z")).String()))
	assert.False(t, ValidateHashHex("xyz"))
	assert.False(t, ValidateHashHex(""))
}
