package strengthen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"64K", 64 << 10},
		{"64k", 64 << 10},
		{"2 MiB", 2 << 20},
		{"1GB", 1 << 30},
		{"3 tib", 3 << 40},
		{"0", 0},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
	for _, in := range []string{"", "MiB", "12X", "1.5G"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "5 B", FormatSize(5))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "2.0 MiB", FormatSize(2<<20))
}
