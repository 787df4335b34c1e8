package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase with spaces", "ab12 cd3456", "AB12CD3456"},
		{"already normalized", "AB12CD3456", "AB12CD3456"},
		{"punctuation stripped", "KA-01.AB 1234", "KA01AB1234"},
		{"whitespace only", "   ", ""},
		{"empty", "", ""},
		{"unicode noise dropped", "KA01•AB1234", "KA01AB1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePlate(tt.input))
		})
	}
}
