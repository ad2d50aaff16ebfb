package selection

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

func makeExam() *model.Exam {
	exam := &model.Exam{
		ID:                      uuid.New(),
		AllowSelectiveAnswering: true,
		SectionBRequiredCount:   2,
		SectionCRequiredCount:   1,
		Sections: []model.Section{
			{Name: model.SectionA, Questions: questions(model.SectionA, 2)},
			{Name: model.SectionB, Questions: questions(model.SectionB, 4)},
			{Name: model.SectionC, Questions: questions(model.SectionC, 2)},
		},
	}
	return exam
}

func questions(section string, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New(), Section: section}
	}
	return qs
}

func sortedIDs(exam *model.Exam, section string) []uuid.UUID {
	var ids []uuid.UUID
	for _, sec := range exam.Sections {
		if sec.Name != section {
			continue
		}
		for _, q := range sec.Questions {
			ids = append(ids, q.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func noPersist(ctx context.Context, questionID uuid.UUID, isSelected bool) error { return nil }

func TestFallbackSelectsFirstRequiredBySortedID(t *testing.T) {
	exam := makeExam()
	m := New(exam, nil, noPersist, zerolog.Nop())

	bIDs := sortedIDs(exam, model.SectionB)
	for i, id := range bIDs {
		want := i < 2
		if got := m.IsSelected(id); got != want {
			t.Errorf("section B question %d: IsSelected = %v, want %v", i, got, want)
		}
	}

	cIDs := sortedIDs(exam, model.SectionC)
	for i, id := range cIDs {
		want := i < 1
		if got := m.IsSelected(id); got != want {
			t.Errorf("section C question %d: IsSelected = %v, want %v", i, got, want)
		}
	}

	if s := m.Summary(model.SectionB); s.Selected != 2 || s.Required != 2 || !s.Complete {
		t.Errorf("Summary(B) = %+v, want {2 2 true}", s)
	}
	if s := m.Summary(model.SectionC); s.Selected != 1 || s.Required != 1 || !s.Complete {
		t.Errorf("Summary(C) = %+v, want {1 1 true}", s)
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	exam := makeExam()

	first := New(exam, nil, noPersist, zerolog.Nop()).Snapshot()
	for i := 0; i < 5; i++ {
		again := New(exam, nil, noPersist, zerolog.Nop()).Snapshot()
		if len(again) != len(first) {
			t.Fatalf("snapshot size changed: %d vs %d", len(again), len(first))
		}
		for id, sel := range first {
			if again[id] != sel {
				t.Fatalf("fallback diverged for %s: %v vs %v", id, sel, again[id])
			}
		}
	}
}

func TestServerSelectionUsedVerbatim(t *testing.T) {
	exam := makeExam()
	bIDs := sortedIDs(exam, model.SectionB)

	// Server picks the LAST two of B, opposite of the fallback.
	server := map[uuid.UUID]bool{
		bIDs[0]: false,
		bIDs[1]: false,
		bIDs[2]: true,
		bIDs[3]: true,
	}
	m := New(exam, server, noPersist, zerolog.Nop())

	for i, id := range bIDs {
		if got := m.IsSelected(id); got != server[id] {
			t.Errorf("question %d: IsSelected = %v, want server value %v", i, got, server[id])
		}
	}
	// Section C had no server entries, so the fallback still applies there.
	if s := m.Summary(model.SectionC); s.Selected != 1 {
		t.Errorf("Summary(C).Selected = %d, want fallback 1", s.Selected)
	}
}

func TestDeselectBelowMinimumRejected(t *testing.T) {
	exam := makeExam()
	m := New(exam, nil, noPersist, zerolog.Nop())
	bIDs := sortedIDs(exam, model.SectionB)

	// Exactly 2 of 4 selected; deselecting a selected one must be refused.
	result, err := m.Toggle(context.Background(), bIDs[0])
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if result != ToggleBelowMinimum {
		t.Fatalf("Toggle() = %s, want %s", result, ToggleBelowMinimum)
	}
	if !m.IsSelected(bIDs[0]) {
		t.Error("rejected toggle mutated state")
	}
	if s := m.Summary(model.SectionB); s.Selected != 2 {
		t.Errorf("Summary(B).Selected = %d, want 2", s.Selected)
	}
}

func TestSelectAboveMinimumThenDeselect(t *testing.T) {
	exam := makeExam()
	m := New(exam, nil, noPersist, zerolog.Nop())
	bIDs := sortedIDs(exam, model.SectionB)

	// Select a third question: allowed, count may exceed the minimum.
	if result, err := m.Toggle(context.Background(), bIDs[2]); err != nil || result != ToggleApplied {
		t.Fatalf("select: Toggle() = %s, %v", result, err)
	}
	if s := m.Summary(model.SectionB); s.Selected != 3 {
		t.Fatalf("Summary(B).Selected = %d, want 3", s.Selected)
	}

	// Now a deselect is fine: 3-1 still meets the minimum of 2.
	if result, err := m.Toggle(context.Background(), bIDs[0]); err != nil || result != ToggleApplied {
		t.Fatalf("deselect: Toggle() = %s, %v", result, err)
	}
	if s := m.Summary(model.SectionB); s.Selected != 2 {
		t.Errorf("Summary(B).Selected = %d, want 2", s.Selected)
	}
}

func TestToggleSectionAIsInformationalNoop(t *testing.T) {
	exam := makeExam()
	m := New(exam, nil, noPersist, zerolog.Nop())
	aID := exam.Sections[0].Questions[0].ID

	result, err := m.Toggle(context.Background(), aID)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if result != ToggleAlwaysRequired {
		t.Errorf("Toggle() = %s, want %s", result, ToggleAlwaysRequired)
	}
	if !m.IsSelected(aID) {
		t.Error("section A question must always count")
	}
}

func TestToggleDisabledExamWide(t *testing.T) {
	exam := makeExam()
	exam.AllowSelectiveAnswering = false
	m := New(exam, nil, noPersist, zerolog.Nop())
	bID := exam.Sections[1].Questions[0].ID

	result, err := m.Toggle(context.Background(), bID)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if result != ToggleNotSelective {
		t.Errorf("Toggle() = %s, want %s", result, ToggleNotSelective)
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	exam := makeExam()
	boom := errors.New("server down")
	failing := func(ctx context.Context, questionID uuid.UUID, isSelected bool) error { return boom }
	m := New(exam, nil, failing, zerolog.Nop())
	bIDs := sortedIDs(exam, model.SectionB)

	result, err := m.Toggle(context.Background(), bIDs[2]) // select an unselected one
	if result != ToggleFailed {
		t.Fatalf("Toggle() = %s, want %s", result, ToggleFailed)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Toggle() error = %v, want wrapped %v", err, boom)
	}
	if m.IsSelected(bIDs[2]) {
		t.Error("failed persist must roll back the local toggle")
	}
	if s := m.Summary(model.SectionB); s.Selected != 2 {
		t.Errorf("Summary(B).Selected = %d, want 2 after rollback", s.Selected)
	}
}
