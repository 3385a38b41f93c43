package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	s := snapshotAt(185*time.Second, 42, 100)
	s.CompletedFiles = []string{"/a", "/b"}

	tests := []struct {
		name     string
		template string
		index    int
		total    int
		want     string
	}{
		{"progress and counters", "[[PROGRESS]]% done, [[CURRENT_TASK_INDEX]]/[[TOTAL_TASKS]]", 3, 5, "42% done, 3/5"},
		{"elapsed", "took [[ELAPSED_TIME]]", 1, 1, "took 3m 5s"},
		{"files", "[[UPLOADED_FILES]] files", 1, 1, "2 files"},
		{"repeated token", "[[PROGRESS]] [[PROGRESS]]", 1, 1, "42 42"},
		{"unknown token kept", "[[NOPE]] [[PROGRESS]]", 1, 1, "[[NOPE]] 42"},
		{"no tokens", "plain text", 1, 1, "plain text"},
		{"empty", "", 1, 1, ""},
		{"missing total", "[[TOTAL_TASKS]]", 1, 0, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, s, tt.index, tt.total))
		})
	}
}

func TestRenderRate(t *testing.T) {
	s := snapshotAt(time.Second, 1000, 2000)
	assert.Equal(t, "8 kbit/s", Render(PlaceholderUploadRate, s, 1, 1))
}
