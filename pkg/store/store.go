package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a submitted question.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusApproved   Status = "Approved"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// AnswerStatus mirrors the success state of a stored answer.
type AnswerStatus string

const (
	AnswerApproved AnswerStatus = "Approved"
	AnswerFailed   AnswerStatus = "Failed"
)

// ErrNotFound is returned when a question does not exist.
var ErrNotFound = errors.New("question not found")

// Question is a persisted audit question. Creation and approval happen
// in an external reviewer workflow; batch runs own the transitions to
// Processing, Completed and Failed.
type Question struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer is an insert-only record of one agent invocation. QuestionText
// is a snapshot taken at processing time, not a live reference.
type Answer struct {
	ID           int64           `json:"id"`
	QuestionID   int64           `json:"question_id"`
	QuestionText string          `json:"question_text"`
	Payload      json.RawMessage `json:"payload"`
	Status       AnswerStatus    `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// QuestionStore is the persistence contract the audit pipeline consumes.
type QuestionStore interface {
	// FetchEligible returns all Approved questions in insertion order.
	FetchEligible(ctx context.Context) ([]Question, error)

	// StoreAnswer inserts an answer row. Answers are never mutated or
	// deleted afterwards.
	StoreAnswer(ctx context.Context, questionID int64, questionText string, payload json.RawMessage, status AnswerStatus) error

	// SetQuestionStatus transitions a question's lifecycle state.
	SetQuestionStatus(ctx context.Context, id int64, status Status) error
}
