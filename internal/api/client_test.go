package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestGetExamDecodesEnvelope(t *testing.T) {
	examID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/exams/"+examID.String() {
			t.Errorf("path = %q", r.URL.Path)
		}
		respond(w, http.StatusOK, `{"data":{"id":"`+examID.String()+`","title":"Ujian","time_limit_minutes":90},"error":null}`)
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("token-123"), zerolog.Nop())
	exam, err := client.GetExam(context.Background(), examID)
	if err != nil {
		t.Fatalf("GetExam() error = %v", err)
	}
	if exam.ID != examID || exam.Title != "Ujian" || exam.TimeLimitMinutes != 90 {
		t.Errorf("exam = %+v", exam)
	}
}

func TestGetSessionMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, `{"data":null,"error":{"code":"SESSION_NOT_FOUND","message":"Sesi ujian tidak ditemukan."}}`)
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	_, err := client.GetSession(context.Background(), uuid.New())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetSession() = %v, want ErrSessionNotFound", err)
	}
}

func TestErrorCarriesEnvelopeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusForbidden, `{"data":null,"error":{"code":"EXAM_LOCKED","message":"Ujian ini sedang dikunci dan tidak dapat dikerjakan."}}`)
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	_, err := client.StartSession(context.Background(), uuid.New())

	apiErr, ok := Rejection(err)
	if !ok {
		t.Fatalf("StartSession() = %v, want a rejection", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "EXAM_LOCKED" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.Message == "" {
		t.Error("message missing from error")
	}
}

func TestNonJSONErrorBodyStillMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	err := client.SaveAnswer(context.Background(), uuid.New(), AnswerPayload{})

	if !ServerFault(err) {
		t.Fatalf("SaveAnswer() = %v, want a server fault", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "UNKNOWN" {
		t.Errorf("apiErr = %+v, want UNKNOWN code for non-envelope body", apiErr)
	}
}

func TestSaveAnswerSendsTypedPayload(t *testing.T) {
	var got AnswerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		respond(w, http.StatusOK, `{"data":{"saved":true},"error":null}`)
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	questionID := uuid.New()
	payload, err := BuildAnswerPayload(questionID, model.TypeMatching,
		model.MatchingAnswer{Pairs: map[string]string{"Jepang": "Tokyo"}})
	if err != nil {
		t.Fatalf("BuildAnswerPayload() error = %v", err)
	}

	if err := client.SaveAnswer(context.Background(), uuid.New(), payload); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if got.QuestionID != questionID || got.QuestionType != model.TypeMatching {
		t.Errorf("payload = %+v", got)
	}
	if got.Matches["Jepang"] != "Tokyo" {
		t.Errorf("matches = %v", got.Matches)
	}
	if len(got.SelectedOptions) != 0 || got.AnswerText != "" {
		t.Error("unrelated payload fields must stay empty")
	}
}

func TestCompleteReturnsScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `{"data":{"total_score":18.5,"max_possible_score":21,"answered_count":6},"error":null}`)
	}))
	defer srv.Close()

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	result, err := client.Complete(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if result.TotalScore != 18.5 || result.MaxPossibleScore != 21 || result.AnsweredCount != 6 {
		t.Errorf("result = %+v", result)
	}
}

func TestContextDeadlineSurfacesAsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := New(srv.URL, StaticToken("t"), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetExam(ctx, uuid.New())
	if err == nil {
		t.Fatal("GetExam() = nil, want timeout")
	}
	if !Timeout(err) {
		t.Errorf("Timeout(%v) = false, want true", err)
	}
}

func TestBuildAnswerPayloadRejectsNil(t *testing.T) {
	if _, err := BuildAnswerPayload(uuid.New(), model.TypeEssay, nil); err == nil {
		t.Fatal("BuildAnswerPayload(nil) = nil error, want failure")
	}
}
