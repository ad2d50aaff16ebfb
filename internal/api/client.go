// Package api is the engine's view of the ExStem backend: a thin JSON/HTTP
// client over the six session-facing endpoints. It knows nothing about
// retries — callers wrap each call in a retry.Policy — and never blocks
// past the context it is given.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// TokenSource supplies the bearer token attached to every request. Auth is
// owned by an external collaborator; the engine only carries the token.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for a fixed, pre-issued token.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// Client talks to the backend's student session endpoints.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
	log    zerolog.Logger
}

// New creates a Client. base is the API root, e.g. "http://host/api/v1".
// The http.Client is used without a client-level timeout; deadlines come
// from the per-call context.
func New(base string, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{},
		tokens: tokens,
		log:    log.With().Str("component", "api_client").Logger(),
	}
}

// envelope mirrors the backend's standard response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetExam fetches the exam paper. The exam may report IsLocked, in which
// case no session must be created.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var exam model.Exam
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%s", examID), nil, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetSession fetches the student's existing session for an exam.
// Returns ErrSessionNotFound when none exists yet.
func (c *Client) GetSession(ctx context.Context, examID uuid.UUID) (*model.Session, error) {
	var session model.Session
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%s/session", examID), nil, &session)
	if err != nil {
		if apiErr, ok := Rejection(err); ok && apiErr.Status == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// StartSession creates a new session for the exam.
func (c *Client) StartSession(ctx context.Context, examID uuid.UUID) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/exams/%s/start", examID), struct{}{}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveAnswer pushes one answer. Idempotent per (question, value).
func (c *Client) SaveAnswer(ctx context.Context, examID uuid.UUID, payload AnswerPayload) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/exams/%s/answer", examID), payload, nil)
}

// SelectQuestion persists a selective-answering toggle. The server may
// reject it with a below-minimum validation error.
func (c *Client) SelectQuestion(ctx context.Context, examID, questionID uuid.UUID, isSelected bool) error {
	req := SelectQuestionRequest{QuestionID: questionID, IsSelected: isSelected}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/exams/%s/select-question", examID), req, nil)
}

// Complete finalizes the session and returns the score payload.
func (c *Client) Complete(ctx context.Context, examID uuid.UUID) (*model.ScoreResult, error) {
	var result model.ScoreResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/exams/%s/complete", examID), struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		// A non-JSON body (proxy error page) still maps onto a status error.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode, Code: "UNKNOWN"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("path", path).
			Msg("Request failed")
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
