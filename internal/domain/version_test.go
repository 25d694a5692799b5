package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{"3.0.196", Version{3, 0, 196}, true},
		{"3.0", Version{3, 0}, true},
		{"1.2.3.4", Version{1, 2, 3, 4}, true},
		{" 3.0.100 ", Version{3, 0, 100}, true},
		{"", nil, false},
		{"3", nil, false},
		{"1.2.3.4.5", nil, false},
		{"3.0.beta", nil, false},
		{"3.-1.0", nil, false},
		{"3..0", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"3.0.100", "3.0.196", -1},
		{"3.0.200", "3.0.196", 1},
		{"3.0.196", "3.0.196", 0},
		{"3.0.196.0", "3.0.196", 1},
		{"3.0", "3.0.0", -1},
		{"3.1", "3.0.196", 1},
		{"10.0.0", "9.9.9", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a := MustParseVersion(tt.a)
			b := MustParseVersion(tt.b)
			assert.Equal(t, tt.want, a.Compare(b))
			assert.Equal(t, -tt.want, b.Compare(a))
		})
	}
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "3.0.196", MustParseVersion("3.0.196").String())
}
