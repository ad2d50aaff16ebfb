// Package classify resolves the canonical kind of a question when the
// authored type is missing or inconsistent with the question's payloads.
//
// The precedence rules form a fixed, order-sensitive decision table:
// structural payloads first (matching pairs, ordering items, drop zones),
// then fill-in-blank pattern > true/false > multiple-choice > essay >
// short-answer > section fallback. Reordering the checks changes results
// for ambiguous questions, so the order must not be disturbed.
package classify

import (
	"regexp"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
)

// blankPattern matches the underscore runs authors use to mark blanks,
// e.g. "The capital of France is ____."
var blankPattern = regexp.MustCompile(`_{3,}|\[blank\]`)

// essayWordThreshold is the prompt length at which an optionless question
// is treated as an essay rather than a short answer.
const essayWordThreshold = 20

// Resolve returns the canonical type for a question. The authored type wins
// when it is valid and consistent with the question's payloads; otherwise
// the decision table applies.
func Resolve(q *model.Question) model.QuestionType {
	if q.Type.Valid() && consistent(q) {
		return q.Type
	}
	return detect(q)
}

// consistent reports whether the authored type matches the payloads the
// question actually carries. An authored MATCHING with no pairs, or an
// authored MULTIPLE_CHOICE with no options, is treated as unclassified.
func consistent(q *model.Question) bool {
	switch q.Type {
	case model.TypeMatching:
		return len(q.MatchingPairs) > 0
	case model.TypeOrdering:
		return len(q.OrderingItems) > 0
	case model.TypeDragDrop:
		return len(q.DropZones) > 0 && len(q.Draggables) > 0
	case model.TypeMultipleChoice, model.TypeMultipleAnswer:
		return len(q.Options) >= 2
	case model.TypeTrueFalse:
		return len(q.Options) == 0 || isTrueFalseOptions(q.Options)
	default:
		return true
	}
}

func detect(q *model.Question) model.QuestionType {
	// Structural payloads are unambiguous and outrank text heuristics.
	switch {
	case len(q.MatchingPairs) > 0:
		return model.TypeMatching
	case len(q.OrderingItems) > 0:
		return model.TypeOrdering
	case len(q.DropZones) > 0 && len(q.Draggables) > 0:
		return model.TypeDragDrop
	}

	if blankPattern.MatchString(q.Text) {
		return model.TypeFillInBlank
	}

	if isTrueFalseOptions(q.Options) {
		return model.TypeTrueFalse
	}

	if len(q.Options) >= 2 {
		return model.TypeMultipleChoice
	}

	if len(strings.Fields(q.Text)) >= essayWordThreshold {
		return model.TypeEssay
	}

	if strings.TrimSpace(q.Text) != "" {
		return model.TypeShortAnswer
	}

	return sectionFallback(q.Section)
}

// isTrueFalseOptions reports whether the options are exactly a true/false
// pair in any accepted spelling.
func isTrueFalseOptions(options []string) bool {
	if len(options) != 2 {
		return false
	}
	var hasTrue, hasFalse bool
	for _, opt := range options {
		switch strings.ToLower(strings.TrimSpace(opt)) {
		case "true", "benar", "t":
			hasTrue = true
		case "false", "salah", "f":
			hasFalse = true
		}
	}
	return hasTrue && hasFalse
}

// sectionFallback is the last resort for questions with no usable signal.
// Section A is objective, B is short written work, C is extended writing.
func sectionFallback(section string) model.QuestionType {
	switch section {
	case model.SectionA:
		return model.TypeMultipleChoice
	case model.SectionB:
		return model.TypeShortAnswer
	default:
		return model.TypeEssay
	}
}
