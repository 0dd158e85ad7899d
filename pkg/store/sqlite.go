package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'Pending',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS answers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	question_id   INTEGER NOT NULL REFERENCES questions(id),
	question_text TEXT NOT NULL,
	payload       TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status);
CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);
`

// SQLiteStore implements QuestionStore on a local sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the sqlite store at path.
func Open(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Question store opened")

	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FetchEligible returns all Approved questions in insertion order.
func (s *SQLiteStore) FetchEligible(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, status, created_at, updated_at
		 FROM questions WHERE status = ? ORDER BY id`, StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch eligible questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	return questions, nil
}

// StoreAnswer inserts an answer row with a snapshot of the question text.
func (s *SQLiteStore) StoreAnswer(ctx context.Context, questionID int64, questionText string, payload json.RawMessage, status AnswerStatus) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (question_id, question_text, payload, status) VALUES (?, ?, ?, ?)`,
		questionID, questionText, string(payload), status)
	if err != nil {
		return fmt.Errorf("failed to store answer: %w", err)
	}

	s.logger.Debug().Int64("question_id", questionID).Str("status", string(status)).Msg("Answer stored")
	return nil
}

// SetQuestionStatus transitions a question's lifecycle state.
func (s *SQLiteStore) SetQuestionStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update question status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitQuestion creates a new Pending question and returns its id.
func (s *SQLiteStore) SubmitQuestion(ctx context.Context, text string) (int64, error) {
	if text == "" {
		return 0, fmt.Errorf("question text cannot be empty")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (text, status) VALUES (?, ?)`, text, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to submit question: %w", err)
	}
	return res.LastInsertId()
}

// ApproveQuestion marks a question eligible for batch processing.
func (s *SQLiteStore) ApproveQuestion(ctx context.Context, id int64) error {
	return s.SetQuestionStatus(ctx, id, StatusApproved)
}

// GetQuestion returns a single question by id.
func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (Question, error) {
	var q Question
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, status, created_at, updated_at FROM questions WHERE id = ?`, id).
		Scan(&q.ID, &q.Text, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// ListAnswers returns all answers stored for a question, oldest first.
func (s *SQLiteStore) ListAnswers(ctx context.Context, questionID int64) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, question_text, payload, status, created_at
		 FROM answers WHERE question_id = ? ORDER BY id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var a Answer
		var payload string
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.QuestionText, &payload, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.Payload = json.RawMessage(payload)
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}

	return answers, nil
}
