// Package answers owns the local copy of every answer and its sync state.
// The store is the authority: a failed sync never discards a value the
// student entered, it only flips the flags that describe server state.
package answers

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// ErrUnknownQuestion is returned for a question id outside the exam.
var ErrUnknownQuestion = errors.New("answers: unknown question")

// ErrAnswerLocked is returned when mutating a choice answer that has been
// answered and saved to the server. Locked-in answers are immutable.
var ErrAnswerLocked = errors.New("answers: answer is locked in")

// Answer is the per-question record. Created empty when the session starts
// or resumes; mutated by user input and sync outcomes; never deleted.
type Answer struct {
	Value         model.AnswerValue
	Answered      bool
	SavedToServer bool
	HasChanges    bool
	LastSaveError string
}

type record struct {
	Answer
	rev int64 // bumped on every Set; guards stale sync completions
}

// Store is the in-memory answer map. Safe for use from the event goroutines
// that drive the engine.
type Store struct {
	mu    sync.Mutex
	types map[uuid.UUID]model.QuestionType // resolved at load, immutable
	recs  map[uuid.UUID]*record
}

// NewStore creates an empty record for every question. types must hold the
// resolved (classified) type per question id.
func NewStore(types map[uuid.UUID]model.QuestionType) *Store {
	recs := make(map[uuid.UUID]*record, len(types))
	for id := range types {
		recs[id] = &record{}
	}
	return &Store{types: types, recs: recs}
}

// Type returns the resolved question type.
func (s *Store) Type(questionID uuid.UUID) (model.QuestionType, bool) {
	t, ok := s.types[questionID]
	return t, ok
}

// Set records a locally entered value. Immediate-sync types count as
// answered at once; deferred types count as answered while non-empty and
// stay dirty until an explicit save or the pre-submission flush.
func (s *Store) Set(questionID uuid.UUID, value model.AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if s.types[questionID].Choice() && rec.Answered && rec.SavedToServer {
		return ErrAnswerLocked
	}

	rec.Value = value
	rec.Answered = value != nil && !value.Empty()
	rec.HasChanges = true
	rec.SavedToServer = false
	rec.LastSaveError = ""
	rec.rev++
	return nil
}

// Hydrate installs a server-side answer snapshot during session resume.
func (s *Store) Hydrate(questionID uuid.UUID, value model.AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	rec.Value = value
	rec.Answered = value != nil && !value.Empty()
	rec.SavedToServer = true
	rec.HasChanges = false
	rec.LastSaveError = ""
	rec.rev++
	return nil
}

// HydrateDirty installs a locally journaled value that never reached the
// server, so it survives a reload as an unsynced edit.
func (s *Store) HydrateDirty(questionID uuid.UUID, value model.AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	rec.Value = value
	rec.Answered = value != nil && !value.Empty()
	rec.SavedToServer = false
	rec.HasChanges = true
	rec.rev++
	return nil
}

// Get returns a copy of the record for a question.
func (s *Store) Get(questionID uuid.UUID) (Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return Answer{}, false
	}
	return rec.Answer, true
}

// snapshot returns the current value and revision for a sync attempt.
func (s *Store) snapshot(questionID uuid.UUID) (model.AnswerValue, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return nil, 0, false
	}
	return rec.Value, rec.rev, true
}

// markSaved flips the record to synced, unless the value changed while the
// save was in flight (revision mismatch); the superseding save owns it then.
func (s *Store) markSaved(questionID uuid.UUID, rev int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok || rec.rev != rev {
		return
	}
	rec.SavedToServer = true
	rec.HasChanges = false
	rec.LastSaveError = ""
}

// markSaveFailed records a failed sync. The local value is untouched.
func (s *Store) markSaveFailed(questionID uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[questionID]
	if !ok {
		return
	}
	rec.SavedToServer = false
	rec.HasChanges = true
	rec.LastSaveError = err.Error()
}

// Dirty returns the deferred-type questions with unsynced edits, in stable
// id order so the pre-submission flush is deterministic.
func (s *Store) Dirty() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, rec := range s.recs {
		if rec.HasChanges && s.types[id].Deferred() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// AnsweredCount returns how many questions currently count as answered.
func (s *Store) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.recs {
		if rec.Answered {
			n++
		}
	}
	return n
}
