package usecase

import (
	"strings"

	"speakwell/internal/domain"
)

// ExerciseQueue is the ordered list of prompts for one practice session.
// It is not safe for concurrent use; the owning controller guards it.
type ExerciseQueue struct {
	exerciseType string
	prompts      []string
	cursor       int
	finished     bool
}

// NewExerciseQueue copies prompts, dropping blank entries. An empty list falls
// back to a single free-speech prompt.
func NewExerciseQueue(exerciseType string, prompts []string) *ExerciseQueue {
	cleaned := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		if trimmed := strings.TrimSpace(prompt); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{domain.FallbackPrompt}
	}
	if strings.TrimSpace(exerciseType) == "" {
		exerciseType = "general"
	}
	return &ExerciseQueue{exerciseType: exerciseType, prompts: cleaned}
}

func (q *ExerciseQueue) Type() string {
	return q.exerciseType
}

// Current returns the prompt under the cursor.
func (q *ExerciseQueue) Current() string {
	return q.prompts[q.cursor]
}

func (q *ExerciseQueue) Index() int {
	return q.cursor
}

func (q *ExerciseQueue) Len() int {
	return len(q.prompts)
}

func (q *ExerciseQueue) Finished() bool {
	return q.finished
}

// Advance moves to the next prompt. Moving past the last prompt marks the
// queue finished and leaves the cursor on the last prompt.
func (q *ExerciseQueue) Advance() (finished bool) {
	if q.finished {
		return true
	}
	if q.cursor+1 >= len(q.prompts) {
		q.finished = true
		return true
	}
	q.cursor++
	return false
}
