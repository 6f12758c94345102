package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakwell/internal/domain"
)

func TestOpenRequiresProject(t *testing.T) {
	_, err := Open(context.Background(), Config{ProjectID: "  "})
	require.Error(t, err)
}

func TestResultDocMapping(t *testing.T) {
	issues := []string{"s", "th"}
	doc := toResultDoc(domain.ExerciseRecord{
		ID:           "ignored",
		ExerciseType: "lisp",
		ExerciseText: "Sally sells",
		Transcript:   "thally thells",
		Score:        55,
		Accuracy:     60,
		Feedback:     "Tongue behind the teeth",
		Issues:       issues,
		Timestamp:    time.Now(),
	})

	assert.Equal(t, "thally thells", doc.Transcription)
	assert.True(t, doc.Timestamp.IsZero(), "timestamp is assigned by the server")
	issues[0] = "changed"
	assert.Equal(t, []string{"s", "th"}, doc.Issues)

	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.FixedZone("x", 3600))
	doc.Timestamp = at
	got := doc.toDomain("doc-1")
	assert.Equal(t, "doc-1", got.ID)
	assert.Equal(t, "lisp", got.ExerciseType)
	assert.Equal(t, 55.0, got.Score)
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.True(t, at.Equal(got.Timestamp))
}

func TestStatsUpdateMergesServerTimestamp(t *testing.T) {
	update := statsUpdate("u1", domain.UserStats{
		TotalSessions: 2,
		AverageScore:  72.5,
		SpeechIssues:  []string{"lisp"},
	})

	assert.Equal(t, "u1", update["uid"])
	assert.Equal(t, 2, update["totalSessions"])
	assert.Equal(t, 72.5, update["averageScore"])
	assert.Equal(t, []string{"lisp"}, update["speechIssues"])
	assert.Equal(t, firestore.ServerTimestamp, update["lastPractice"])

	empty := statsUpdate("u1", domain.UserStats{})
	assert.Equal(t, []string{}, empty["speechIssues"])
}

func TestUserDocWithoutPracticeKeepsZeroTime(t *testing.T) {
	stats := userDoc{TotalSessions: 1, AverageScore: 40}.toDomain()
	assert.True(t, stats.LastPractice.IsZero())
	assert.Equal(t, 1, stats.TotalSessions)
}

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestStoreAgainstEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, Config{ProjectID: "speakwell-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	user := "user-" + uuid.NewString()

	stats, err := store.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{}, stats)

	require.NoError(t, store.SaveExerciseResult(ctx, user, domain.ExerciseRecord{ExerciseType: "lisp", Score: 60}))
	require.NoError(t, store.SaveExerciseResult(ctx, user, domain.ExerciseRecord{ExerciseType: "general", Score: 90}))

	history, err := store.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "general", history[0].ExerciseType)

	stats, err = store.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 75.0, stats.AverageScore)
	assert.False(t, stats.LastPractice.IsZero())

	weak, err := store.WeakAreas(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []domain.WeakArea{{Type: "lisp", AverageScore: 60}}, weak)

	daily, err := store.Progress(ctx, user, 30)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 2, daily[0].Sessions)
}
