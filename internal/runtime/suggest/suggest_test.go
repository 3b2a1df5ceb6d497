package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"Linux", "Linux", 0},
		{"Linx", "Linux", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "%q -> %q", tt.a, tt.b)
	}
}

func TestClosest(t *testing.T) {
	options := []string{"PC", "ANDROID", "ALL", "Windows", "Linux"}

	assert.Equal(t, "Windows", Closest("Windos", options))
	assert.Equal(t, "ANDROID", Closest("ANDRIOD", options))
	assert.Empty(t, Closest("Symbian", options))
}
