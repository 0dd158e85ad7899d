package audit

import "time"

// OutcomeStatus classifies how one question's processing ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Reason identifies why an item was skipped or failed.
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonInvocationError  Reason = "invocation_error"
	ReasonPersistenceError Reason = "persistence_error"
	ReasonEmptyResponse    Reason = "empty_response"
)

// Outcome is the per-item result of a batch run. Failures are values
// accumulated into the run result, never exceptions escaping the loop.
type Outcome struct {
	ID           string        `json:"id"`
	QuestionID   int64         `json:"question_id"`
	QuestionText string        `json:"question_text,omitempty"`
	Status       OutcomeStatus `json:"status"`
	Reason       Reason        `json:"reason,omitempty"`
	Detail       string        `json:"detail,omitempty"`

	// AnswerObtained distinguishes "agent answered but we lost the
	// answer" from "agent never answered".
	AnswerObtained bool `json:"answer_obtained"`

	At time.Time `json:"at"`
}

// Result aggregates one complete batch run. Outcomes are reported in
// the order the eligible questions were fetched.
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Processed returns the total number of items that produced an outcome.
func (r Result) Processed() int {
	return r.Succeeded + r.Skipped + r.Failed
}
