package engine

import (
	"strconv"
	"strings"
)

// Placeholder tokens understood by Render.
const (
	PlaceholderElapsedTime      = "[[ELAPSED_TIME]]"
	PlaceholderUploadRate       = "[[UPLOAD_RATE]]"
	PlaceholderProgress         = "[[PROGRESS]]"
	PlaceholderUploadedFiles    = "[[UPLOADED_FILES]]"
	PlaceholderCurrentTaskIndex = "[[CURRENT_TASK_INDEX]]"
	PlaceholderTotalTasks       = "[[TOTAL_TASKS]]"
)

// Render replaces the placeholder tokens in template with values taken from
// the snapshot. Text that is not a known token is kept as is.
func Render(template string, s Snapshot, taskIndex, totalTasks int) string {
	if template == "" || !strings.Contains(template, "[[") {
		return template
	}

	if totalTasks <= 0 {
		totalTasks = 1
	}

	r := strings.NewReplacer(
		PlaceholderElapsedTime, s.ElapsedString(),
		PlaceholderUploadRate, s.UploadRateString(),
		PlaceholderProgress, strconv.Itoa(s.ProgressPercent()),
		PlaceholderUploadedFiles, strconv.Itoa(len(s.CompletedFiles)),
		PlaceholderCurrentTaskIndex, strconv.Itoa(taskIndex),
		PlaceholderTotalTasks, strconv.Itoa(totalTasks),
	)
	return r.Replace(template)
}
