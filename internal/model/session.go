package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Session is a student's single attempt at an exam, as snapshotted by the
// server at load time. RemainingSeconds is the countdown source of truth.
type Session struct {
	ID               uuid.UUID `json:"id"`
	ExamID           uuid.UUID `json:"exam_id"`
	RemainingSeconds int       `json:"remaining_seconds"`

	// SavedAnswers holds answers the server already has, keyed by question
	// id, for resume after reload. May be empty for a fresh session.
	SavedAnswers map[uuid.UUID]SavedAnswer `json:"saved_answers,omitempty"`

	// Selection is the server's per-question isSelected state for selective
	// sections. A nil map means the server did not supply selection state
	// and the client must compute the deterministic fallback.
	Selection map[uuid.UUID]bool `json:"selection,omitempty"`
}

// SavedAnswer is a server-side answer snapshot used to rehydrate the store.
type SavedAnswer struct {
	QuestionType QuestionType    `json:"question_type"`
	Value        json.RawMessage `json:"value"`
}

// ScoreResult is the completion payload returned by the server.
type ScoreResult struct {
	TotalScore       float64 `json:"total_score"`
	MaxPossibleScore float64 `json:"max_possible_score"`
	AnsweredCount    int     `json:"answered_count"`
	CompletedAt      string  `json:"completed_at,omitempty"`
}
