package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the canonical question kinds.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TypeMultipleAnswer QuestionType = "MULTIPLE_ANSWER"
	TypeTrueFalse      QuestionType = "TRUE_FALSE"
	TypeMatching       QuestionType = "MATCHING"
	TypeOrdering       QuestionType = "ORDERING"
	TypeDragDrop       QuestionType = "DRAG_DROP"
	TypeFillInBlank    QuestionType = "FILL_IN_BLANK"
	TypeShortAnswer    QuestionType = "SHORT_ANSWER"
	TypeEssay          QuestionType = "ESSAY"
)

// Valid reports whether t is one of the canonical kinds.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeMultipleChoice, TypeMultipleAnswer, TypeTrueFalse,
		TypeMatching, TypeOrdering, TypeDragDrop,
		TypeFillInBlank, TypeShortAnswer, TypeEssay:
		return true
	}
	return false
}

// Deferred reports whether the type follows the deferred-sync discipline:
// free-text answers are pushed on explicit save or pre-submission flush
// rather than on every edit.
func (t QuestionType) Deferred() bool {
	switch t {
	case TypeFillInBlank, TypeShortAnswer, TypeEssay:
		return true
	}
	return false
}

// Choice reports whether the type is a choice kind whose answers lock in
// once saved to the server.
func (t QuestionType) Choice() bool {
	switch t {
	case TypeMultipleChoice, TypeMultipleAnswer, TypeTrueFalse:
		return true
	}
	return false
}

// Question is a single exam question. Immutable.
type Question struct {
	ID      uuid.UUID    `json:"id"`
	Section string       `json:"section"`
	Type    QuestionType `json:"question_type"` // authored; may be absent or wrong
	Text    string       `json:"question_text"`
	Options []string     `json:"options,omitempty"`
	Points  float64      `json:"points"`

	// Type-specific payloads.
	MatchingPairs []MatchPair `json:"matching_pairs,omitempty"`
	OrderingItems []string    `json:"ordering_items,omitempty"`
	DropZones     []string    `json:"drop_zones,omitempty"`
	Draggables    []string    `json:"draggables,omitempty"`
}

// MatchPair is one left/right pair of a matching question. Only the left
// prompts and the shuffled right candidates are sent to students.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}
