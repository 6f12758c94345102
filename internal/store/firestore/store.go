// Package firestore keeps practice results in Cloud Firestore under users/{uid}.
package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"speakwell/internal/domain"
	"speakwell/internal/progress"
)

const (
	usersCollection   = "users"
	resultsCollection = "exerciseResults"
)

// Config selects the Firebase project.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Store implements ports.ProgressStore on Firestore.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type resultDoc struct {
	ExerciseType  string    `firestore:"exerciseType"`
	ExerciseText  string    `firestore:"exerciseText"`
	Transcription string    `firestore:"transcription"`
	Score         float64   `firestore:"score"`
	Accuracy      float64   `firestore:"accuracy"`
	Feedback      string    `firestore:"feedback"`
	Issues        []string  `firestore:"issues"`
	Timestamp     time.Time `firestore:"timestamp,serverTimestamp"`
}

type userDoc struct {
	TotalSessions int       `firestore:"totalSessions"`
	AverageScore  float64   `firestore:"averageScore"`
	SpeechIssues  []string  `firestore:"speechIssues"`
	LastPractice  time.Time `firestore:"lastPractice"`
}

func toResultDoc(record domain.ExerciseRecord) resultDoc {
	return resultDoc{
		ExerciseType:  record.ExerciseType,
		ExerciseText:  record.ExerciseText,
		Transcription: record.Transcript,
		Score:         record.Score,
		Accuracy:      record.Accuracy,
		Feedback:      record.Feedback,
		Issues:        append([]string{}, record.Issues...),
	}
}

func (d resultDoc) toDomain(id string) domain.ExerciseRecord {
	return domain.ExerciseRecord{
		ID:           id,
		ExerciseType: d.ExerciseType,
		ExerciseText: d.ExerciseText,
		Transcript:   d.Transcription,
		Score:        d.Score,
		Accuracy:     d.Accuracy,
		Feedback:     d.Feedback,
		Issues:       d.Issues,
		Timestamp:    d.Timestamp.UTC(),
	}
}

func (d userDoc) toDomain() domain.UserStats {
	stats := domain.UserStats{
		TotalSessions: d.TotalSessions,
		AverageScore:  d.AverageScore,
		SpeechIssues:  d.SpeechIssues,
	}
	if !d.LastPractice.IsZero() {
		stats.LastPractice = d.LastPractice.UTC()
	}
	return stats
}

// statsUpdate is merged into the user document, leaving profile fields alone.
func statsUpdate(userID string, stats domain.UserStats) map[string]any {
	return map[string]any{
		"uid":           userID,
		"totalSessions": stats.TotalSessions,
		"averageScore":  stats.AverageScore,
		"speechIssues":  append([]string{}, stats.SpeechIssues...),
		"lastPractice":  firestore.ServerTimestamp,
	}
}

func (s *Store) userRef(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

// SaveExerciseResult adds the result and updates the user's stats in one transaction.
func (s *Store) SaveExerciseResult(ctx context.Context, userID string, record domain.ExerciseRecord) error {
	userRef := s.userRef(userID)
	resultRef := userRef.Collection(resultsCollection).NewDoc()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		prev, err := readStats(tx.Get(userRef))
		if err != nil {
			return err
		}
		next := progress.UpdateStats(prev, record, s.now())

		if err := tx.Create(resultRef, toResultDoc(record)); err != nil {
			return err
		}
		return tx.Set(userRef, statsUpdate(userID, next), firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("save exercise result: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, userID string, limit int) ([]domain.ExerciseRecord, error) {
	if limit <= 0 {
		limit = progress.DefaultHistoryLimit
	}
	return s.recent(ctx, userID, limit)
}

func (s *Store) WeakAreas(ctx context.Context, userID string) ([]domain.WeakArea, error) {
	records, err := s.recent(ctx, userID, progress.WeakAreaWindow)
	if err != nil {
		return nil, err
	}
	return progress.WeakAreas(records), nil
}

func (s *Store) Progress(ctx context.Context, userID string, days int) ([]domain.DailyProgress, error) {
	records, err := s.recent(ctx, userID, progress.ProgressWindow)
	if err != nil {
		return nil, err
	}
	return progress.Daily(records, days, s.now()), nil
}

func (s *Store) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	return readStats(s.userRef(userID).Get(ctx))
}

func (s *Store) recent(ctx context.Context, userID string, limit int) ([]domain.ExerciseRecord, error) {
	snaps, err := s.userRef(userID).Collection(resultsCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("query exercise results: %w", err)
	}

	records := make([]domain.ExerciseRecord, 0, len(snaps))
	for _, snap := range snaps {
		var doc resultDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode exercise result %s: %w", snap.Ref.ID, err)
		}
		records = append(records, doc.toDomain(snap.Ref.ID))
	}
	return records, nil
}

// readStats treats a missing user document as empty stats.
func readStats(snap *firestore.DocumentSnapshot, err error) (domain.UserStats, error) {
	if snap != nil && !snap.Exists() {
		return domain.UserStats{}, nil
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("read user stats: %w", err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.UserStats{}, fmt.Errorf("decode user stats: %w", err)
	}
	return doc.toDomain(), nil
}
