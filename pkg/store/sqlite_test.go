package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := Open(filepath.Join(tmpDir, "sleuth.db"), zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpen(t *testing.T) {
	t.Run("should fail with empty path", func(t *testing.T) {
		_, err := Open("", zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should create parent directory", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "store-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		s, err := Open(filepath.Join(tmpDir, "nested", "sleuth.db"), zerolog.Nop())
		require.NoError(t, err)
		s.Close()
	})
}

func TestQuestionLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.SubmitQuestion(ctx, "count events yesterday")
	require.NoError(t, err)

	t.Run("pending questions are not eligible", func(t *testing.T) {
		eligible, err := s.FetchEligible(ctx)
		require.NoError(t, err)
		assert.Empty(t, eligible)
	})

	t.Run("approved questions become eligible in insertion order", func(t *testing.T) {
		id2, err := s.SubmitQuestion(ctx, "how many mortgage cases closed this week")
		require.NoError(t, err)

		require.NoError(t, s.ApproveQuestion(ctx, id2))
		require.NoError(t, s.ApproveQuestion(ctx, id))

		eligible, err := s.FetchEligible(ctx)
		require.NoError(t, err)
		require.Len(t, eligible, 2)
		assert.Equal(t, id, eligible[0].ID)
		assert.Equal(t, id2, eligible[1].ID)
	})

	t.Run("status transition removes from eligible set", func(t *testing.T) {
		require.NoError(t, s.SetQuestionStatus(ctx, id, StatusCompleted))

		eligible, err := s.FetchEligible(ctx)
		require.NoError(t, err)
		require.Len(t, eligible, 1)

		q, err := s.GetQuestion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, q.Status)
	})

	t.Run("missing question returns ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, s.SetQuestionStatus(ctx, 9999, StatusFailed), ErrNotFound)

		_, err := s.GetQuestion(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty question text is rejected", func(t *testing.T) {
		_, err := s.SubmitQuestion(ctx, "")
		assert.Error(t, err)
	})
}

func TestAnswers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.SubmitQuestion(ctx, "count events yesterday")
	require.NoError(t, err)
	require.NoError(t, s.ApproveQuestion(ctx, id))

	payload := json.RawMessage(`{"answer":"412 events"}`)
	require.NoError(t, s.StoreAnswer(ctx, id, "count events yesterday", payload, AnswerApproved))

	t.Run("stored answer snapshots the question text", func(t *testing.T) {
		answers, err := s.ListAnswers(ctx, id)
		require.NoError(t, err)
		require.Len(t, answers, 1)

		assert.Equal(t, id, answers[0].QuestionID)
		assert.Equal(t, "count events yesterday", answers[0].QuestionText)
		assert.JSONEq(t, `{"answer":"412 events"}`, string(answers[0].Payload))
		assert.Equal(t, AnswerApproved, answers[0].Status)
	})

	t.Run("reprocessing yields a second answer row", func(t *testing.T) {
		require.NoError(t, s.StoreAnswer(ctx, id, "count events yesterday", json.RawMessage(`{"answer":"413 events"}`), AnswerApproved))

		answers, err := s.ListAnswers(ctx, id)
		require.NoError(t, err)
		assert.Len(t, answers, 2)
	})

	t.Run("snapshot survives question edits", func(t *testing.T) {
		_, err := s.db.ExecContext(ctx, `UPDATE questions SET text = 'edited' WHERE id = ?`, id)
		require.NoError(t, err)

		answers, err := s.ListAnswers(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "count events yesterday", answers[0].QuestionText)
	})

	t.Run("empty payload stored as empty document", func(t *testing.T) {
		require.NoError(t, s.StoreAnswer(ctx, id, "count events yesterday", nil, AnswerFailed))

		answers, err := s.ListAnswers(ctx, id)
		require.NoError(t, err)
		last := answers[len(answers)-1]
		assert.JSONEq(t, `{}`, string(last.Payload))
		assert.Equal(t, AnswerFailed, last.Status)
	})
}
