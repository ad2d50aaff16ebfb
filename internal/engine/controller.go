// Package engine hosts the session controller: the state machine that owns
// one exam attempt from load to submission. It composes the answer store,
// sync client, selection manager, countdown timer and integrity monitor,
// and guards the completion call with a one-shot (but releasable) latch so
// racing triggers — timer expiry, a fullscreen grace elapsing, a manual
// submit — produce exactly one completion request.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/answers"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/classify"
	"github.com/stemsi/exstem-client/internal/integrity"
	"github.com/stemsi/exstem-client/internal/journal"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/retry"
	"github.com/stemsi/exstem-client/internal/selection"
	"github.com/stemsi/exstem-client/internal/timer"
)

// State is the controller's lifecycle state.
type State string

const (
	StateLoading    State = "LOADING"
	StateError      State = "ERROR"
	StateActive     State = "ACTIVE"
	StateSubmitting State = "SUBMITTING"
	StateCompleted  State = "COMPLETED"
)

// Backend is the controller's view of the server. Implemented by
// api.Client; tests supply fakes.
type Backend interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetSession(ctx context.Context, examID uuid.UUID) (*model.Session, error)
	StartSession(ctx context.Context, examID uuid.UUID) (*model.Session, error)
	SaveAnswer(ctx context.Context, examID uuid.UUID, payload api.AnswerPayload) error
	SelectQuestion(ctx context.Context, examID, questionID uuid.UUID, isSelected bool) error
	Complete(ctx context.Context, examID uuid.UUID) (*model.ScoreResult, error)
}

// NoticeKind classifies controller notifications to the UI layer.
type NoticeKind string

const (
	NoticeStateChanged  NoticeKind = "STATE_CHANGED"
	NoticeTimerWarning  NoticeKind = "TIMER_WARNING"
	NoticeTimerCritical NoticeKind = "TIMER_CRITICAL"
	NoticeForcedSubmit  NoticeKind = "FORCED_SUBMIT"
	NoticeSubmitFailed  NoticeKind = "SUBMIT_FAILED"
)

// Notice is a controller event for the UI. Informational; dropping notices
// never corrupts session state.
type Notice struct {
	Kind   NoticeKind
	State  State
	Reason string
	Err    error
}

// DefaultCompletePolicy is the completion retry budget: 3 attempts,
// 2s/4s/6s backoff, 30s hard timeout per attempt.
var DefaultCompletePolicy = retry.Policy{
	Attempts: 3,
	Backoff:  []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second},
	Timeout:  30 * time.Second,
}

// Controller is the top-level session state machine.
type Controller struct {
	backend Backend
	source  integrity.Source
	log     zerolog.Logger

	completePolicy retry.Policy
	syncPolicy     *retry.Policy
	timerOpts      []timer.Option
	monitorOpts    []integrity.Option
	jrnl           *journal.Journal

	mu        sync.Mutex
	state     State
	exam      *model.Exam
	session   *model.Session
	questions map[uuid.UUID]*model.Question
	lastErr   error
	result    *model.ScoreResult

	store *answers.Store
	sync  *answers.SyncClient
	sel   *selection.Manager
	timer *timer.ExamTimer
	mon   *integrity.Monitor

	submitGate int32
	notices    chan Notice

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithCompletePolicy overrides the completion retry policy.
func WithCompletePolicy(p retry.Policy) Option {
	return func(c *Controller) { c.completePolicy = p }
}

// WithSyncPolicy overrides the answer sync retry policy.
func WithSyncPolicy(p retry.Policy) Option {
	return func(c *Controller) { c.syncPolicy = &p }
}

// WithTimerOptions passes options to the exam timer.
func WithTimerOptions(opts ...timer.Option) Option {
	return func(c *Controller) { c.timerOpts = opts }
}

// WithMonitorOptions passes options to the integrity monitor.
func WithMonitorOptions(opts ...integrity.Option) Option {
	return func(c *Controller) { c.monitorOpts = opts }
}

// WithJournal enables the local crash-recovery journal.
func WithJournal(j *journal.Journal) Option {
	return func(c *Controller) { c.jrnl = j }
}

// New creates a Controller in the Loading state.
func New(backend Backend, source integrity.Source, log zerolog.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:        backend,
		source:         source,
		log:            log.With().Str("component", "session_controller").Logger(),
		completePolicy: DefaultCompletePolicy,
		state:          StateLoading,
		notices:        make(chan Notice, 16),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notices is the controller's event stream for the UI layer.
func (c *Controller) Notices() <-chan Notice { return c.notices }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exam returns the loaded exam, nil before Load succeeds.
func (c *Controller) Exam() *model.Exam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exam
}

// Result returns the final score payload once Completed.
func (c *Controller) Result() *model.ScoreResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// LastError returns the error that put the controller into StateError.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Remaining returns the countdown's remaining time.
func (c *Controller) Remaining() time.Duration {
	if c.timer == nil {
		return 0
	}
	return c.timer.Remaining()
}

// ViolationCount returns the monitor's monotonic violation total.
func (c *Controller) ViolationCount() int {
	if c.mon == nil {
		return 0
	}
	return c.mon.Count()
}

// Monitor exposes the integrity monitor, e.g. to attach a reporter.
func (c *Controller) Monitor() *integrity.Monitor { return c.mon }

// QuestionType returns the resolved type of a question.
func (c *Controller) QuestionType(questionID uuid.UUID) (model.QuestionType, bool) {
	if c.store == nil {
		return "", false
	}
	return c.store.Type(questionID)
}

// Answer returns the local answer record for a question.
func (c *Controller) Answer(questionID uuid.UUID) (answers.Answer, bool) {
	if c.store == nil {
		return answers.Answer{}, false
	}
	return c.store.Get(questionID)
}

// SelectionSummary reports a section's selection status for submission
// warnings. An incomplete selection flags but never blocks submission.
func (c *Controller) SelectionSummary(section string) selection.Summary {
	if c.sel == nil {
		return selection.Summary{}
	}
	return c.sel.Summary(section)
}

// IsSelected reports whether a question counts toward scoring.
func (c *Controller) IsSelected(questionID uuid.UUID) bool {
	if c.sel == nil {
		return true
	}
	return c.sel.IsSelected(questionID)
}

// Load fetches the exam, fetches or creates the session, hydrates all
// sub-components and transitions to Active. A locked exam transitions to
// Error without creating a session.
func (c *Controller) Load(ctx context.Context, examID uuid.UUID) error {
	c.setState(StateLoading)

	exam, err := c.backend.GetExam(ctx, examID)
	if err != nil {
		return c.fail(&Error{Code: ErrLoadFailed, Err: fmt.Errorf("get exam: %w", err)})
	}
	if exam.IsLocked {
		return c.fail(&Error{Code: ErrExamLocked})
	}

	session, err := c.backend.GetSession(ctx, examID)
	fresh := false
	if err != nil {
		if err != api.ErrSessionNotFound {
			return c.fail(&Error{Code: ErrLoadFailed, Err: fmt.Errorf("get session: %w", err)})
		}
		session, err = c.backend.StartSession(ctx, examID)
		if err != nil {
			return c.fail(&Error{Code: ErrLoadFailed, Err: fmt.Errorf("start session: %w", err)})
		}
		fresh = true
	}

	// Resolve every question's canonical type once, up front.
	types := make(map[uuid.UUID]model.QuestionType)
	questions := make(map[uuid.UUID]*model.Question)
	for si := range exam.Sections {
		for qi := range exam.Sections[si].Questions {
			q := &exam.Sections[si].Questions[qi]
			types[q.ID] = classify.Resolve(q)
			questions[q.ID] = q
		}
	}

	store := answers.NewStore(types)
	c.hydrateAnswers(store, session)

	syncClient := answers.NewSyncClient(c.backend, store, exam.ID, c.log)
	if c.syncPolicy != nil {
		syncClient.SetPolicy(*c.syncPolicy)
	}
	if c.jrnl != nil {
		sessionID := session.ID
		syncClient.SetOnSaved(func(qid uuid.UUID) {
			if err := c.jrnl.MarkSynced(context.Background(), sessionID, qid); err != nil {
				c.log.Warn().Err(err).Msg("Journal mark-synced failed")
			}
		})
		c.replayJournal(store, session)
	}

	sel := selection.New(exam, session.Selection, c.persistSelection(exam.ID), c.log)

	remaining := time.Duration(session.RemainingSeconds) * time.Second
	if fresh && remaining <= 0 {
		remaining = time.Duration(exam.TimeLimitMinutes) * time.Minute
	}
	examTimer := timer.New(remaining, c.log, c.timerOpts...)

	mon := integrity.New(c.source, c.forcedSubmit, c.log, c.monitorOpts...)

	c.mu.Lock()
	c.exam = exam
	c.session = session
	c.questions = questions
	c.store = store
	c.sync = syncClient
	c.sel = sel
	c.timer = examTimer
	c.mon = mon
	c.mu.Unlock()

	c.setState(StateActive)
	examTimer.Start(c.ctx)
	mon.Start(c.ctx)
	go c.pumpTimer()

	c.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("session_id", session.ID.String()).
		Bool("fresh", fresh).
		Dur("remaining", remaining).
		Msg("Session active")
	return nil
}

// SetAnswer records a locally entered value. Immediate-sync types are
// pushed to the server at once; deferred types only mark the record dirty.
func (c *Controller) SetAnswer(ctx context.Context, questionID uuid.UUID, value model.AnswerValue) error {
	if c.State() != StateActive {
		return ErrNotActive
	}
	if err := c.store.Set(questionID, value); err != nil {
		return err
	}

	questionType, _ := c.store.Type(questionID)
	c.journalRecord(questionID, questionType, value)

	if !questionType.Deferred() {
		c.sync.Save(c.ctx, questionID)
	}
	return nil
}

// SaveQuestion pushes a deferred answer explicitly: on the save action or
// when the student navigates away from the question.
func (c *Controller) SaveQuestion(ctx context.Context, questionID uuid.UUID) error {
	if c.State() != StateActive {
		return ErrNotActive
	}
	return c.sync.SaveNow(ctx, questionID)
}

// ToggleSelection flips a question's selective-answering state.
func (c *Controller) ToggleSelection(ctx context.Context, questionID uuid.UUID) (selection.ToggleResult, error) {
	if c.State() != StateActive {
		return "", ErrNotActive
	}
	return c.sel.Toggle(ctx, questionID)
}

// Submit drives the submission procedure. The first caller takes the
// latch; concurrent callers get ErrSubmitInProgress and a caller after
// completion gets the stored result. On a recoverable failure the latch is
// released, the session returns to Active and Submit may be retried.
func (c *Controller) Submit(ctx context.Context) (*model.ScoreResult, error) {
	if c.State() == StateCompleted {
		return c.Result(), nil
	}
	if !atomic.CompareAndSwapInt32(&c.submitGate, 0, 1) {
		return nil, ErrSubmitInProgress
	}
	if c.State() != StateActive {
		atomic.StoreInt32(&c.submitGate, 0)
		return nil, ErrNotActive
	}

	c.setState(StateSubmitting)

	// Flush dirty free-text answers sequentially; individual failures are
	// logged inside and tolerated.
	if failed := c.sync.Flush(ctx); failed > 0 {
		c.log.Warn().Int("failed", failed).Msg("Some answers left unsynced before completion")
	}

	if c.store.AnsweredCount() == 0 {
		err := &Error{Code: ErrNoAnswers}
		c.abortSubmit(err)
		return nil, err
	}

	var result *model.ScoreResult
	err := c.completePolicy.Do(ctx, func(ctx context.Context) error {
		res, err := c.backend.Complete(ctx, c.exam.ID)
		if err != nil {
			if _, rejected := api.Rejection(err); rejected {
				return retry.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		engErr := classifySubmitError(err)
		c.abortSubmit(engErr)
		return nil, engErr
	}

	c.mu.Lock()
	c.result = result
	c.mu.Unlock()
	c.setState(StateCompleted)

	c.timer.Stop()
	c.mon.Stop()

	c.log.Info().
		Float64("total_score", result.TotalScore).
		Float64("max_score", result.MaxPossibleScore).
		Msg("Session completed")
	return result, nil
}

// Close tears down the controller's goroutines and timers.
func (c *Controller) Close() {
	c.cancel()
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.mon != nil {
		c.mon.Stop()
	}
}

// ─── internals ─────────────────────────────────────────────────────────

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify(Notice{Kind: NoticeStateChanged, State: s})
}

func (c *Controller) fail(err *Error) error {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()
	c.notify(Notice{Kind: NoticeStateChanged, State: StateError, Err: err})
	return err
}

// abortSubmit returns the session to Active and releases the latch so the
// student may retry.
func (c *Controller) abortSubmit(err error) {
	c.setState(StateActive)
	atomic.StoreInt32(&c.submitGate, 0)
	c.notify(Notice{Kind: NoticeSubmitFailed, State: StateActive, Err: err})
}

func (c *Controller) pumpTimer() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.timer.Events():
			if !ok {
				return
			}
			switch ev {
			case timer.EventWarning:
				c.notify(Notice{Kind: NoticeTimerWarning, State: c.State()})
			case timer.EventCritical:
				c.notify(Notice{Kind: NoticeTimerCritical, State: c.State()})
			case timer.EventExpired:
				c.forcedSubmit("time expired")
				return
			}
		}
	}
}

// forcedSubmit is the shared trigger for timer expiry and integrity
// escalation. Losing the latch race means another trigger already won.
func (c *Controller) forcedSubmit(reason string) {
	c.notify(Notice{Kind: NoticeForcedSubmit, State: c.State(), Reason: reason})
	c.log.Warn().Str("reason", reason).Msg("Forced submission triggered")

	if _, err := c.Submit(c.ctx); err != nil && err != ErrSubmitInProgress {
		c.log.Error().Err(err).Str("reason", reason).Msg("Forced submission failed")
	}
}

func (c *Controller) persistSelection(examID uuid.UUID) selection.PersistFunc {
	return func(ctx context.Context, questionID uuid.UUID, isSelected bool) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return c.backend.SelectQuestion(ctx, examID, questionID, isSelected)
	}
}

func (c *Controller) hydrateAnswers(store *answers.Store, session *model.Session) {
	for qid, saved := range session.SavedAnswers {
		value, err := model.DecodeAnswerValue(saved.Value)
		if err != nil {
			c.log.Warn().Err(err).
				Str("question_id", qid.String()).
				Msg("Skipping undecodable saved answer")
			continue
		}
		if err := store.Hydrate(qid, value); err != nil {
			c.log.Warn().Err(err).
				Str("question_id", qid.String()).
				Msg("Saved answer references unknown question")
		}
	}
}

// replayJournal re-installs journaled values that never reached the
// server, so a crash between edit and sync loses nothing.
func (c *Controller) replayJournal(store *answers.Store, session *model.Session) {
	entries, err := c.jrnl.Unsynced(context.Background(), session.ID)
	if err != nil {
		c.log.Warn().Err(err).Msg("Journal replay failed")
		return
	}
	for _, e := range entries {
		if rec, ok := store.Get(e.QuestionID); ok {
			if t, _ := store.Type(e.QuestionID); t.Choice() && rec.SavedToServer {
				continue // locked in on the server; the journal row is stale
			}
		}
		if err := store.HydrateDirty(e.QuestionID, e.Value); err != nil {
			c.log.Warn().Err(err).
				Str("question_id", e.QuestionID.String()).
				Msg("Journal row references unknown question")
		}
	}
	if len(entries) > 0 {
		c.log.Info().Int("count", len(entries)).Msg("Replayed unsynced journal entries")
	}
}

func (c *Controller) journalRecord(questionID uuid.UUID, questionType model.QuestionType, value model.AnswerValue) {
	if c.jrnl == nil {
		return
	}
	if err := c.jrnl.Record(context.Background(), c.session.ID, questionID, questionType, value, false); err != nil {
		c.log.Warn().Err(err).Msg("Journal write failed")
	}
}

func (c *Controller) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
	}
}

func classifySubmitError(err error) *Error {
	if apiErr, ok := api.Rejection(err); ok {
		return &Error{Code: ErrSubmitRejected, RejectionCode: apiErr.Code, Err: err}
	}
	if api.ServerFault(err) {
		return &Error{Code: ErrSubmitServerError, Err: err}
	}
	if api.Timeout(err) {
		return &Error{Code: ErrSubmitTimeout, Err: err}
	}
	// Connection drops and other transport failures retry like timeouts.
	return &Error{Code: ErrSubmitTimeout, Err: err}
}
