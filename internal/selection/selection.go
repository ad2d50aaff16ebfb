// Package selection mediates which questions in the selective sections
// count toward scoring. The one hard invariant: once initialized, a
// selective section's selected count never drops below its required count.
package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// ToggleResult describes the outcome of a toggle attempt.
type ToggleResult string

const (
	// ToggleApplied means the toggle was applied and persisted.
	ToggleApplied ToggleResult = "APPLIED"
	// ToggleNotSelective means selective answering is disabled exam-wide.
	ToggleNotSelective ToggleResult = "NOT_SELECTIVE"
	// ToggleAlwaysRequired means the question is in section A.
	ToggleAlwaysRequired ToggleResult = "ALWAYS_REQUIRED"
	// ToggleBelowMinimum means the deselect would violate the minimum.
	ToggleBelowMinimum ToggleResult = "BELOW_MINIMUM"
	// ToggleFailed means the server refused the persist; state rolled back.
	ToggleFailed ToggleResult = "PERSIST_FAILED"
)

// PersistFunc pushes one toggle to the server.
type PersistFunc func(ctx context.Context, questionID uuid.UUID, isSelected bool) error

// Summary is the per-section selection status used to gate submission
// warnings. It never blocks submission outright.
type Summary struct {
	Selected int  `json:"selected"`
	Required int  `json:"required"`
	Complete bool `json:"complete"`
}

// Manager owns selected/unselected state for sections B and C.
type Manager struct {
	mu       sync.Mutex
	enabled  bool
	required map[string]int       // section → minimum selected count
	section  map[uuid.UUID]string // question → section, selective only
	selected map[uuid.UUID]bool
	persist  PersistFunc
	log      zerolog.Logger
}

// New builds a Manager and computes initial selection state.
//
// If the server supplied selection state for a section it is used verbatim.
// Otherwise the deterministic fallback applies: sort the section's
// questions by id and select the first requiredCount. The fallback must be
// reproducible because it substitutes for missing server state; the server
// documents the same first-N-by-sorted-id rule, and any divergence between
// the two sorts is a compatibility risk rather than something to reconcile
// here.
func New(exam *model.Exam, serverSelection map[uuid.UUID]bool, persist PersistFunc, log zerolog.Logger) *Manager {
	m := &Manager{
		enabled:  exam.AllowSelectiveAnswering,
		required: make(map[string]int),
		section:  make(map[uuid.UUID]string),
		selected: make(map[uuid.UUID]bool),
		persist:  persist,
		log:      log.With().Str("component", "selection").Logger(),
	}

	for _, sec := range exam.Sections {
		if sec.Name != model.SectionB && sec.Name != model.SectionC {
			continue
		}
		m.required[sec.Name] = exam.RequiredCount(sec.Name)

		ids := make([]uuid.UUID, 0, len(sec.Questions))
		for _, q := range sec.Questions {
			m.section[q.ID] = sec.Name
			ids = append(ids, q.ID)
		}

		if sectionCovered(ids, serverSelection) {
			for _, id := range ids {
				m.selected[id] = serverSelection[id]
			}
			continue
		}

		// Deterministic fallback: first requiredCount by sorted id.
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for i, id := range ids {
			m.selected[id] = i < m.required[sec.Name]
		}
	}

	return m
}

// sectionCovered reports whether the server supplied selection state for
// any of the section's questions. Partial server state still wins over the
// fallback; absent entries default to unselected.
func sectionCovered(ids []uuid.UUID, serverSelection map[uuid.UUID]bool) bool {
	for _, id := range ids {
		if _, ok := serverSelection[id]; ok {
			return true
		}
	}
	return false
}

// IsSelected reports whether a question currently counts toward scoring.
// Questions outside the selective sections always count.
func (m *Manager) IsSelected(questionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.section[questionID]; !ok {
		return true
	}
	return m.selected[questionID]
}

// Toggle flips a question's selection and persists it. Deselects that would
// drop the section below its minimum are rejected without mutating state;
// persistence failures roll the local flip back.
func (m *Manager) Toggle(ctx context.Context, questionID uuid.UUID) (ToggleResult, error) {
	m.mu.Lock()

	if !m.enabled {
		m.mu.Unlock()
		return ToggleNotSelective, nil
	}
	sec, ok := m.section[questionID]
	if !ok {
		m.mu.Unlock()
		return ToggleAlwaysRequired, nil
	}

	next := !m.selected[questionID]
	if !next && m.selectedCountLocked(sec)-1 < m.required[sec] {
		m.mu.Unlock()
		return ToggleBelowMinimum, nil
	}

	m.selected[questionID] = next
	m.mu.Unlock()

	if err := m.persist(ctx, questionID, next); err != nil {
		m.mu.Lock()
		m.selected[questionID] = !next
		m.mu.Unlock()
		m.log.Warn().Err(err).
			Str("question_id", questionID.String()).
			Msg("Selection persist failed, toggle rolled back")
		return ToggleFailed, fmt.Errorf("persist selection: %w", err)
	}

	return ToggleApplied, nil
}

// Summary returns the selection status of a section.
func (m *Manager) Summary(section string) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Required: m.required[section]}
	s.Selected = m.selectedCountLocked(section)
	s.Complete = s.Selected >= s.Required
	return s
}

// Snapshot returns a copy of the selection map for reporting.
func (m *Manager) Snapshot() map[uuid.UUID]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uuid.UUID]bool, len(m.selected))
	for id, sel := range m.selected {
		out[id] = sel
	}
	return out
}

func (m *Manager) selectedCountLocked(section string) int {
	n := 0
	for id, sel := range m.selected {
		if sel && m.section[id] == section {
			n++
		}
	}
	return n
}
