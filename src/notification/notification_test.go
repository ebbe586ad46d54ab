package notification

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		degraded int
		failed   int
		want     []string
		absent   []string
	}{
		{"clean run", 0, 0, []string{"Prompts: 3", "Saved: 3"}, []string{"Needs review", "Failed"}},
		{"mixed run", 1, 2, []string{"Needs review: 1", "Failed: 2"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summary("gpt_4o", 3, 3-tt.degraded-tt.failed, tt.degraded, tt.failed, "output_gpt_4o")
			assert.True(t, strings.HasPrefix(got, "Model: gpt_4o\n"))
			assert.True(t, strings.HasSuffix(got, "Output: output_gpt_4o"))
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, got, a)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := truncate(strings.Repeat("ж", 1000))
	assert.Equal(t, maxBodyRunes+3, utf8.RuneCountInString(long))
}
