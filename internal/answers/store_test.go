package answers

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

func newTestStore() (*Store, uuid.UUID, uuid.UUID) {
	choiceID := uuid.New()
	essayID := uuid.New()
	store := NewStore(map[uuid.UUID]model.QuestionType{
		choiceID: model.TypeMultipleChoice,
		essayID:  model.TypeEssay,
	})
	return store, choiceID, essayID
}

func TestSetMarksAnsweredAndDirty(t *testing.T) {
	store, _, essayID := newTestStore()

	if err := store.Set(essayID, model.TextAnswer{Text: "jawaban saya"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	rec, ok := store.Get(essayID)
	if !ok {
		t.Fatal("Get() record missing")
	}
	if !rec.Answered || !rec.HasChanges || rec.SavedToServer {
		t.Errorf("record = %+v, want answered, dirty, unsaved", rec)
	}
	if store.AnsweredCount() != 1 {
		t.Errorf("AnsweredCount() = %d, want 1", store.AnsweredCount())
	}
}

func TestSetEmptyValueIsNotAnswered(t *testing.T) {
	store, _, essayID := newTestStore()

	if err := store.Set(essayID, model.TextAnswer{Text: "   "}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	rec, _ := store.Get(essayID)
	if rec.Answered {
		t.Error("whitespace-only text must not count as answered")
	}
}

func TestSetUnknownQuestion(t *testing.T) {
	store, _, _ := newTestStore()

	err := store.Set(uuid.New(), model.TextAnswer{Text: "x"})
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("Set() = %v, want ErrUnknownQuestion", err)
	}
}

func TestChoiceAnswerLocksInAfterSave(t *testing.T) {
	store, choiceID, _ := newTestStore()

	if err := store.Set(choiceID, model.ChoiceAnswer{Selected: []string{"a"}}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_, rev, _ := store.snapshot(choiceID)
	store.markSaved(choiceID, rev)

	err := store.Set(choiceID, model.ChoiceAnswer{Selected: []string{"b"}})
	if !errors.Is(err, ErrAnswerLocked) {
		t.Fatalf("Set() after lock-in = %v, want ErrAnswerLocked", err)
	}
	rec, _ := store.Get(choiceID)
	if ca, ok := rec.Value.(model.ChoiceAnswer); !ok || ca.Selected[0] != "a" {
		t.Errorf("locked value = %v, want original selection", rec.Value)
	}
}

func TestChoiceAnswerEditableWhileUnsaved(t *testing.T) {
	store, choiceID, _ := newTestStore()

	if err := store.Set(choiceID, model.ChoiceAnswer{Selected: []string{"a"}}); err != nil {
		t.Fatalf("first Set() error = %v", err)
	}
	// Not yet acknowledged by the server, so a re-pick is fine.
	if err := store.Set(choiceID, model.ChoiceAnswer{Selected: []string{"b"}}); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}
	rec, _ := store.Get(choiceID)
	if ca := rec.Value.(model.ChoiceAnswer); ca.Selected[0] != "b" {
		t.Errorf("value = %v, want latest pick", ca.Selected)
	}
}

func TestDeferredAnswerNeverLocks(t *testing.T) {
	store, _, essayID := newTestStore()

	store.Set(essayID, model.TextAnswer{Text: "draft satu"})
	_, rev, _ := store.snapshot(essayID)
	store.markSaved(essayID, rev)

	if err := store.Set(essayID, model.TextAnswer{Text: "draft dua"}); err != nil {
		t.Fatalf("deferred Set() after save = %v, want nil", err)
	}
	rec, _ := store.Get(essayID)
	if !rec.HasChanges || rec.SavedToServer {
		t.Errorf("record = %+v, want dirty again after edit", rec)
	}
}

func TestMarkSavedIgnoresStaleRevision(t *testing.T) {
	store, _, essayID := newTestStore()

	store.Set(essayID, model.TextAnswer{Text: "versi lama"})
	_, staleRev, _ := store.snapshot(essayID)

	// Value changes while the first save is still in flight.
	store.Set(essayID, model.TextAnswer{Text: "versi baru"})

	store.markSaved(essayID, staleRev)
	rec, _ := store.Get(essayID)
	if rec.SavedToServer || !rec.HasChanges {
		t.Errorf("record = %+v, stale save completion must not mark synced", rec)
	}
}

func TestMarkSaveFailedRetainsValue(t *testing.T) {
	store, _, essayID := newTestStore()

	store.Set(essayID, model.TextAnswer{Text: "tetap di sini"})
	store.markSaveFailed(essayID, errors.New("network down"))

	rec, _ := store.Get(essayID)
	if ta := rec.Value.(model.TextAnswer); ta.Text != "tetap di sini" {
		t.Errorf("value = %q, failed save must not discard it", ta.Text)
	}
	if !rec.HasChanges || rec.SavedToServer {
		t.Errorf("record = %+v, want dirty and unsaved", rec)
	}
	if rec.LastSaveError == "" {
		t.Error("LastSaveError must record the failure")
	}
}

func TestDirtyListsDeferredOnlyInStableOrder(t *testing.T) {
	choiceID := uuid.New()
	essayA := uuid.New()
	essayB := uuid.New()
	store := NewStore(map[uuid.UUID]model.QuestionType{
		choiceID: model.TypeMultipleChoice,
		essayA:   model.TypeEssay,
		essayB:   model.TypeShortAnswer,
	})

	store.Set(choiceID, model.ChoiceAnswer{Selected: []string{"a"}})
	store.Set(essayA, model.TextAnswer{Text: "satu"})
	store.Set(essayB, model.TextAnswer{Text: "dua"})

	dirty := store.Dirty()
	if len(dirty) != 2 {
		t.Fatalf("Dirty() = %d entries, want 2 (choice excluded)", len(dirty))
	}
	if dirty[0].String() > dirty[1].String() {
		t.Error("Dirty() must be sorted by id")
	}
	for _, id := range dirty {
		if id == choiceID {
			t.Error("Dirty() must not include immediate-sync questions")
		}
	}
}

func TestHydrateInstallsServerSnapshot(t *testing.T) {
	store, choiceID, essayID := newTestStore()

	if err := store.Hydrate(choiceID, model.ChoiceAnswer{Selected: []string{"c"}}); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	rec, _ := store.Get(choiceID)
	if !rec.Answered || !rec.SavedToServer || rec.HasChanges {
		t.Errorf("record = %+v, want answered, synced, clean", rec)
	}

	// Journaled local edit that never reached the server.
	if err := store.HydrateDirty(essayID, model.TextAnswer{Text: "belum terkirim"}); err != nil {
		t.Fatalf("HydrateDirty() error = %v", err)
	}
	rec, _ = store.Get(essayID)
	if !rec.Answered || rec.SavedToServer || !rec.HasChanges {
		t.Errorf("record = %+v, want answered but still dirty", rec)
	}
	if len(store.Dirty()) != 1 {
		t.Errorf("Dirty() = %d entries, want the journaled edit", len(store.Dirty()))
	}
}
