package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerValue is the tagged union of all answer shapes. Exactly one concrete
// type exists per family of question kinds, so handling stays exhaustive.
type AnswerValue interface {
	isAnswerValue()
	// Empty reports whether the value carries no usable content.
	Empty() bool
}

// ChoiceAnswer holds the selected option(s) of a choice question.
// Single-choice and true/false answers carry exactly one entry.
type ChoiceAnswer struct {
	Selected []string `json:"selected"`
}

// TextAnswer holds free text (fill-in-blank, short answer, essay).
type TextAnswer struct {
	Text string `json:"text"`
}

// MatchingAnswer maps each left prompt to the chosen right candidate.
type MatchingAnswer struct {
	Pairs map[string]string `json:"pairs"`
}

// OrderingAnswer is the student's permutation of the ordering items.
type OrderingAnswer struct {
	Order []string `json:"order"`
}

// PlacementAnswer maps each draggable to the zone it was dropped into.
type PlacementAnswer struct {
	Placements map[string]string `json:"placements"`
}

func (ChoiceAnswer) isAnswerValue()    {}
func (TextAnswer) isAnswerValue()      {}
func (MatchingAnswer) isAnswerValue()  {}
func (OrderingAnswer) isAnswerValue()  {}
func (PlacementAnswer) isAnswerValue() {}

func (a ChoiceAnswer) Empty() bool    { return len(a.Selected) == 0 }
func (a TextAnswer) Empty() bool      { return strings.TrimSpace(a.Text) == "" }
func (a MatchingAnswer) Empty() bool  { return len(a.Pairs) == 0 }
func (a OrderingAnswer) Empty() bool  { return len(a.Order) == 0 }
func (a PlacementAnswer) Empty() bool { return len(a.Placements) == 0 }

// taggedAnswer is the on-disk/journal encoding of an AnswerValue.
type taggedAnswer struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

const (
	kindChoice    = "choice"
	kindText      = "text"
	kindMatching  = "matching"
	kindOrdering  = "ordering"
	kindPlacement = "placement"
)

// EncodeAnswerValue marshals an AnswerValue with a kind tag so it can be
// round-tripped through the local journal.
func EncodeAnswerValue(v AnswerValue) ([]byte, error) {
	var kind string
	switch v.(type) {
	case ChoiceAnswer:
		kind = kindChoice
	case TextAnswer:
		kind = kindText
	case MatchingAnswer:
		kind = kindMatching
	case OrderingAnswer:
		kind = kindOrdering
	case PlacementAnswer:
		kind = kindPlacement
	default:
		return nil, fmt.Errorf("unknown answer value type %T", v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedAnswer{Kind: kind, Value: raw})
}

// DecodeAnswerValue is the inverse of EncodeAnswerValue.
func DecodeAnswerValue(data []byte) (AnswerValue, error) {
	var tagged taggedAnswer
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, err
	}

	switch tagged.Kind {
	case kindChoice:
		var v ChoiceAnswer
		return v, json.Unmarshal(tagged.Value, &v)
	case kindText:
		var v TextAnswer
		return v, json.Unmarshal(tagged.Value, &v)
	case kindMatching:
		var v MatchingAnswer
		return v, json.Unmarshal(tagged.Value, &v)
	case kindOrdering:
		var v OrderingAnswer
		return v, json.Unmarshal(tagged.Value, &v)
	case kindPlacement:
		var v PlacementAnswer
		return v, json.Unmarshal(tagged.Value, &v)
	default:
		return nil, fmt.Errorf("unknown answer kind %q", tagged.Kind)
	}
}
