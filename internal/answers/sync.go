package answers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/retry"
)

// ErrEmptyAnswer is returned when a non-choice answer is empty. Empty
// values are a local validation failure and are never sent.
var ErrEmptyAnswer = errors.New("answers: empty answer value")

// Backend is the slice of the API the sync client needs.
type Backend interface {
	SaveAnswer(ctx context.Context, examID uuid.UUID, payload api.AnswerPayload) error
}

// DefaultPolicy is the per-answer retry budget: 3 attempts, 1s/2s/3s
// backoff, 10s per-attempt timeout.
var DefaultPolicy = retry.Policy{
	Attempts: 3,
	Backoff:  []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
	Timeout:  10 * time.Second,
}

type syncState struct {
	running bool
	rerun   bool
}

// SyncClient pushes answers to the server. Saves for different questions
// may interleave; saves for the same question are serialized — a new save
// requested while one is in flight supersedes it instead of racing it.
type SyncClient struct {
	backend Backend
	store   *Store
	examID  uuid.UUID
	policy  retry.Policy
	log     zerolog.Logger

	mu      sync.Mutex
	states  map[uuid.UUID]*syncState
	onSaved func(questionID uuid.UUID)
	wg      sync.WaitGroup
}

// NewSyncClient creates a SyncClient with the default retry policy.
func NewSyncClient(backend Backend, store *Store, examID uuid.UUID, log zerolog.Logger) *SyncClient {
	return &SyncClient{
		backend: backend,
		store:   store,
		examID:  examID,
		policy:  DefaultPolicy,
		log:     log.With().Str("component", "answer_sync").Logger(),
		states:  make(map[uuid.UUID]*syncState),
	}
}

// SetPolicy overrides the retry policy. Intended for tests.
func (c *SyncClient) SetPolicy(p retry.Policy) { c.policy = p }

// SetOnSaved registers a callback invoked after each acknowledged save,
// e.g. to mark the local journal row as synced. Set before first use.
func (c *SyncClient) SetOnSaved(fn func(questionID uuid.UUID)) { c.onSaved = fn }

// Save schedules an asynchronous push of the question's current value. If a
// push for the same question is already in flight, the in-flight one is
// superseded: it finishes, then a fresh push picks up the latest value.
func (c *SyncClient) Save(ctx context.Context, questionID uuid.UUID) {
	c.mu.Lock()
	st, ok := c.states[questionID]
	if !ok {
		st = &syncState{}
		c.states[questionID] = st
	}
	if st.running {
		st.rerun = true
		c.mu.Unlock()
		return
	}
	st.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.saveOnce(ctx, questionID); err != nil {
				c.log.Warn().Err(err).
					Str("question_id", questionID.String()).
					Msg("Answer sync failed, value retained locally")
			}

			c.mu.Lock()
			if !st.rerun || ctx.Err() != nil {
				st.running = false
				c.mu.Unlock()
				return
			}
			st.rerun = false
			c.mu.Unlock()
		}
	}()
}

// SaveNow pushes the question's current value synchronously and reports the
// outcome. If an asynchronous save is already in flight it is superseded
// and SaveNow returns nil; the in-flight loop will send the latest value.
func (c *SyncClient) SaveNow(ctx context.Context, questionID uuid.UUID) error {
	c.mu.Lock()
	st, ok := c.states[questionID]
	if !ok {
		st = &syncState{}
		c.states[questionID] = st
	}
	if st.running {
		st.rerun = true
		c.mu.Unlock()
		return nil
	}
	st.running = true
	c.mu.Unlock()

	err := c.saveOnce(ctx, questionID)

	c.mu.Lock()
	st.running = false
	st.rerun = false
	c.mu.Unlock()
	return err
}

// Flush sequentially pushes every dirty deferred answer, tolerating
// individual failures. Returns the number of answers that failed to sync.
func (c *SyncClient) Flush(ctx context.Context) int {
	failed := 0
	for _, id := range c.store.Dirty() {
		if err := c.SaveNow(ctx, id); err != nil {
			failed++
			c.log.Warn().Err(err).
				Str("question_id", id.String()).
				Msg("Flush: answer left unsynced")
		}
	}
	return failed
}

// Wait blocks until all asynchronous saves have drained. Test helper.
func (c *SyncClient) Wait() { c.wg.Wait() }

func (c *SyncClient) saveOnce(ctx context.Context, questionID uuid.UUID) error {
	value, rev, ok := c.store.snapshot(questionID)
	if !ok {
		return ErrUnknownQuestion
	}

	questionType, _ := c.store.Type(questionID)
	if !questionType.Choice() && (value == nil || value.Empty()) {
		// Local validation failure: fixed locally, never sent.
		return ErrEmptyAnswer
	}

	payload, err := api.BuildAnswerPayload(questionID, questionType, value)
	if err != nil {
		return err
	}

	err = c.policy.Do(ctx, func(ctx context.Context) error {
		err := c.backend.SaveAnswer(ctx, c.examID, payload)
		if _, rejected := api.Rejection(err); rejected {
			// 4xx will not succeed on resend.
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		c.store.markSaveFailed(questionID, err)
		return err
	}

	c.store.markSaved(questionID, rev)
	if c.onSaved != nil {
		c.onSaved(questionID)
	}
	return nil
}
