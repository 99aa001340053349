package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_SimilarText(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"abc", "", 0},
		{"juan", "juan", 100},
		{"Juan", "JUAN", 100},
		{"abcdefghij", "abcdefgxyz", 70},
		{"World", "Word", 88.88888888888889},
		{"santos", "santso", 83.33333333333333},
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.SimilarText(tt.a, tt.b), 1e-9)
			assert.InDelta(t, s.SimilarText(tt.a, tt.b), s.SimilarText(tt.b, tt.a), 1e-9)
		})
	}
}
