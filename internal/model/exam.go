package model

import (
	"github.com/google/uuid"
)

// Exam is the paper as served to a student. Immutable for the lifetime
// of a session once fetched.
type Exam struct {
	ID                      uuid.UUID `json:"id"`
	Title                   string    `json:"title"`
	TimeLimitMinutes        int       `json:"time_limit_minutes"`
	Sections                []Section `json:"sections"`
	AllowSelectiveAnswering bool      `json:"allow_selective_answering"`
	SectionBRequiredCount   int       `json:"section_b_required_count"`
	SectionCRequiredCount   int       `json:"section_c_required_count"`
	IsLocked                bool      `json:"is_locked"`
}

// Section groups an ordered run of questions. Section A is always fully
// required; B and C are selectively answerable when the exam allows it.
type Section struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// RequiredCount returns the minimum selected-question count for a section,
// or the full question count for sections that are not selective.
func (e *Exam) RequiredCount(section string) int {
	switch section {
	case SectionB:
		return e.SectionBRequiredCount
	case SectionC:
		return e.SectionCRequiredCount
	default:
		for _, s := range e.Sections {
			if s.Name == section {
				return len(s.Questions)
			}
		}
		return 0
	}
}

// SectionOf returns the section a question belongs to, or "" if unknown.
func (e *Exam) SectionOf(questionID uuid.UUID) string {
	for _, s := range e.Sections {
		for _, q := range s.Questions {
			if q.ID == questionID {
				return s.Name
			}
		}
	}
	return ""
}

// QuestionCount returns the total number of questions across all sections.
func (e *Exam) QuestionCount() int {
	n := 0
	for _, s := range e.Sections {
		n += len(s.Questions)
	}
	return n
}

// Section name constants. The backend only ever emits A, B and C.
const (
	SectionA = "A"
	SectionB = "B"
	SectionC = "C"
)
