package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/logging"
)

// DefaultListLimit caps history queries that do not ask for a limit
const DefaultListLimit = 20

// ErrInvalidRecord is returned by Save for records missing a user or result
var ErrInvalidRecord = errors.New("invalid result record")

// Record is one stored grading
type Record struct {
	ID         uuid.UUID                    `json:"id"`
	UserID     uuid.UUID                    `json:"user_id"`
	VoiceRange string                       `json:"voice_range"`
	Score      int                          `json:"score"`
	Result     *assessment.AssessmentResult `json:"results"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// ResultStore is what the HTTP layer needs from persistence
type ResultStore interface {
	Save(ctx context.Context, rec *Record) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Record, error)
}

// Store is the SQLite ResultStore
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// NewStore wraps an opened database
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
		logger: logging.WithFields(logging.Fields{
			"component": "result_store",
		}),
		now: time.Now,
	}
}

// Open opens the database at path and returns a Store over it
func Open(path string, opts ...OpenOption) (*Store, error) {
	db, err := OpenDB(path, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts rec. A zero ID is replaced by a new time-ordered UUID and a
// zero CreatedAt by the current time; both are written back to rec.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.UserID == uuid.Nil || rec.Result == nil {
		return ErrInvalidRecord
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.Must(uuid.NewV7())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pitch_results (id, user_id, voice_range, score, results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.UserID.String(), rec.VoiceRange, rec.Score,
		string(payload), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	s.logger.Debug("Result stored", logging.Fields{
		"id":      rec.ID.String(),
		"user_id": rec.UserID.String(),
		"score":   rec.Score,
	})
	return nil
}

// ListByUser returns a user's results, newest first. limit <= 0 uses DefaultListLimit.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, voice_range, score, results, created_at
		 FROM pitch_results WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			id, user, payload string
			rec               Record
			createdAt         int64
		)
		if err := rows.Scan(&id, &user, &rec.VoiceRange, &rec.Score, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt result id %q: %w", id, err)
		}
		if rec.UserID, err = uuid.Parse(user); err != nil {
			return nil, fmt.Errorf("corrupt user id %q: %w", user, err)
		}
		rec.Result = &assessment.AssessmentResult{}
		if err := json.Unmarshal([]byte(payload), rec.Result); err != nil {
			return nil, fmt.Errorf("corrupt results for %s: %w", id, err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return records, nil
}
