package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// AnswerPayload is the type-tagged body of POST /exams/:id/answer. Only the
// field matching the question type is populated.
type AnswerPayload struct {
	QuestionID      uuid.UUID          `json:"question_id"`
	QuestionType    model.QuestionType `json:"question_type"`
	SelectedOptions []string           `json:"selected_options,omitempty"`
	AnswerText      string             `json:"answer_text,omitempty"`
	Matches         map[string]string  `json:"matches,omitempty"`
	Ordering        []string           `json:"ordering,omitempty"`
	Placements      map[string]string  `json:"placements,omitempty"`
}

// BuildAnswerPayload maps an AnswerValue onto the wire payload for its
// question type. The value's concrete type must agree with the resolved
// question type; a mismatch is a programming error surfaced as an error.
func BuildAnswerPayload(questionID uuid.UUID, questionType model.QuestionType, value model.AnswerValue) (AnswerPayload, error) {
	p := AnswerPayload{
		QuestionID:   questionID,
		QuestionType: questionType,
	}

	switch v := value.(type) {
	case model.ChoiceAnswer:
		p.SelectedOptions = v.Selected
	case model.TextAnswer:
		p.AnswerText = v.Text
	case model.MatchingAnswer:
		p.Matches = v.Pairs
	case model.OrderingAnswer:
		p.Ordering = v.Order
	case model.PlacementAnswer:
		p.Placements = v.Placements
	default:
		return AnswerPayload{}, fmt.Errorf("build answer payload: unsupported value type %T", value)
	}
	return p, nil
}

// SelectQuestionRequest is the body of POST /exams/:id/select-question.
type SelectQuestionRequest struct {
	QuestionID uuid.UUID `json:"question_id"`
	IsSelected bool      `json:"is_selected"`
}
