package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidRespondentID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"prolific_5f3a-01", true},
		{"ABC123", true},
		{"jane.doe@example.org", true},
		{"mturk:A1B2C3", true},
		{"panel.v2:resp_7", true},
		{"slash/path", false},
		{"<script>", false},
		{"quote\"s", false},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{"ünicode", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidRespondentID(tt.id), "id %q", tt.id)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	assert.NoError(t, err)
	b, err := GenerateSecureToken(32)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "=")
}
