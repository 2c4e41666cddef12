package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		correct  []int
		selected []int
		want     bool
	}{
		{"same order", []int{1, 2}, []int{1, 2}, true},
		{"permuted", []int{1, 2}, []int{2, 1}, true},
		{"subset", []int{1}, []int{1, 2}, false},
		{"superset of selection", []int{1, 2}, []int{1}, false},
		{"both empty", []int{}, []int{}, false},
		{"nil selection", []int{0}, nil, false},
		{"duplicates ignored", []int{3}, []int{3, 3}, true},
		{"wrong single", []int{0}, []int{2}, false},
		{"empty key", nil, []int{0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.correct, tt.selected))
		})
	}
}

func TestValidate_PermutationInvariant(t *testing.T) {
	correct := []int{0, 2, 4}
	perms := [][]int{{0, 2, 4}, {4, 2, 0}, {2, 0, 4}, {4, 0, 2}}
	for _, p := range perms {
		assert.True(t, Validate(correct, p), "selection %v", p)
		assert.True(t, Validate(p, correct), "key %v", p)
	}
}
