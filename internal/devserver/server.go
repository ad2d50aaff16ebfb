// Package devserver is an in-memory stand-in for the ExStem backend's
// student session endpoints. It exists so the client engine can be
// developed and exercised end to end without the production stack; it
// mirrors the backend's response envelope, error codes and the
// select-question below-minimum validation.
package devserver

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/validator"
)

// Server holds the devserver's in-memory state: one exam, one student,
// at most one session.
type Server struct {
	cfg     *config.Config
	fixture *Fixture
	student Student
	log     zerolog.Logger

	mu      sync.Mutex
	session *sessionState

	upgrader websocket.Upgrader
}

type storedAnswer struct {
	questionType model.QuestionType
	value        model.AnswerValue
}

type sessionState struct {
	id        uuid.UUID
	startedAt time.Time
	answers   map[uuid.UUID]storedAnswer
	selection map[uuid.UUID]bool
	completed bool
}

// New creates a devserver around the default fixture.
func New(cfg *config.Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		fixture: DefaultFixture(),
		student: DefaultStudent(),
		log:     log.With().Str("component", "devserver").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Lock marks the fixture exam as locked. Test hook.
func (s *Server) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixture.Exam.IsLocked = true
}

// ExamID returns the fixture exam id.
func (s *Server) ExamID() uuid.UUID { return s.fixture.Exam.ID }

// Router builds the Gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.GinMode)
	validator.Setup()

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/v1/auth/login", s.login)

	examAPI := router.Group("/api/v1/exams", s.requireJWT())
	{
		examAPI.GET("/:exam_id", s.getExam)
		examAPI.GET("/:exam_id/session", s.getSession)
		examAPI.POST("/:exam_id/start", s.startSession)
		examAPI.POST("/:exam_id/answer", s.saveAnswer)
		examAPI.POST("/:exam_id/select-question", s.selectQuestion)
		examAPI.POST("/:exam_id/complete", s.complete)
	}

	router.GET("/ws/v1/exams/:exam_id/proctor", s.proctorStream)

	return router
}

// ─── auth ──────────────────────────────────────────────────────────────

type loginRequest struct {
	NISN     string `json:"nisn" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if req.NISN != s.student.NISN ||
		bcrypt.CompareHashAndPassword(s.student.PasswordHash, []byte(req.Password)) != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	claims := jwt.MapClaims{
		"sub": s.student.NISN,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}

func (s *Server) requireJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < 8 || header[:7] != "Bearer " {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		_, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		c.Next()
	}
}

// ─── session endpoints ─────────────────────────────────────────────────

func (s *Server) examOr404(c *gin.Context) *model.Exam {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil
	}
	if examID != s.fixture.Exam.ID {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil
	}
	return s.fixture.Exam
}

func (s *Server) getExam(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}
	response.Success(c, http.StatusOK, exam)
}

func (s *Server) getSession(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, s.sessionPayloadLocked(exam))
}

func (s *Server) startSession(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}
	if exam.IsLocked {
		response.Fail(c, http.StatusForbidden, response.ErrExamLocked)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent: a second start returns the existing session.
	if s.session == nil {
		s.session = &sessionState{
			id:        uuid.New(),
			startedAt: time.Now(),
			answers:   make(map[uuid.UUID]storedAnswer),
			selection: defaultSelection(exam),
		}
		s.log.Info().Str("session_id", s.session.id.String()).Msg("Session started")
	}
	response.Success(c, http.StatusOK, s.sessionPayloadLocked(exam))
}

// defaultSelection applies the server's documented rule: first
// requiredCount questions by sorted id per selective section.
func defaultSelection(exam *model.Exam) map[uuid.UUID]bool {
	sel := make(map[uuid.UUID]bool)
	if !exam.AllowSelectiveAnswering {
		return sel
	}
	for _, sec := range exam.Sections {
		if sec.Name != model.SectionB && sec.Name != model.SectionC {
			continue
		}
		ids := make([]uuid.UUID, 0, len(sec.Questions))
		for _, q := range sec.Questions {
			ids = append(ids, q.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for i, id := range ids {
			sel[id] = i < exam.RequiredCount(sec.Name)
		}
	}
	return sel
}

func (s *Server) sessionPayloadLocked(exam *model.Exam) *model.Session {
	remaining := time.Duration(exam.TimeLimitMinutes)*time.Minute - time.Since(s.session.startedAt)
	if remaining < 0 {
		remaining = 0
	}

	saved := make(map[uuid.UUID]model.SavedAnswer, len(s.session.answers))
	for qid, a := range s.session.answers {
		encoded, err := model.EncodeAnswerValue(a.value)
		if err != nil {
			continue
		}
		saved[qid] = model.SavedAnswer{QuestionType: a.questionType, Value: encoded}
	}

	sel := make(map[uuid.UUID]bool, len(s.session.selection))
	for qid, v := range s.session.selection {
		sel[qid] = v
	}

	return &model.Session{
		ID:               s.session.id,
		ExamID:           exam.ID,
		RemainingSeconds: int(remaining / time.Second),
		SavedAnswers:     saved,
		Selection:        sel,
	}
}

func (s *Server) saveAnswer(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}

	var payload api.AnswerPayload
	if fields := validator.Bind(c, &payload); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	if s.session.completed {
		response.Fail(c, http.StatusBadRequest, response.ErrSessionCompleted)
		return
	}
	if exam.SectionOf(payload.QuestionID) == "" {
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
		return
	}

	value := payloadValue(payload)
	if value == nil || value.Empty() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	// Choice answers lock in server-side too.
	if prev, ok := s.session.answers[payload.QuestionID]; ok &&
		prev.questionType.Choice() && !equalChoice(prev.value, value) {
		response.Fail(c, http.StatusBadRequest, response.ErrAnswerLocked)
		return
	}

	s.session.answers[payload.QuestionID] = storedAnswer{
		questionType: payload.QuestionType,
		value:        value,
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

func payloadValue(p api.AnswerPayload) model.AnswerValue {
	switch {
	case len(p.SelectedOptions) > 0:
		return model.ChoiceAnswer{Selected: p.SelectedOptions}
	case p.AnswerText != "":
		return model.TextAnswer{Text: p.AnswerText}
	case len(p.Matches) > 0:
		return model.MatchingAnswer{Pairs: p.Matches}
	case len(p.Ordering) > 0:
		return model.OrderingAnswer{Order: p.Ordering}
	case len(p.Placements) > 0:
		return model.PlacementAnswer{Placements: p.Placements}
	default:
		return nil
	}
}

func equalChoice(a, b model.AnswerValue) bool {
	ca, ok1 := a.(model.ChoiceAnswer)
	cb, ok2 := b.(model.ChoiceAnswer)
	if !ok1 || !ok2 || len(ca.Selected) != len(cb.Selected) {
		return false
	}
	for i := range ca.Selected {
		if ca.Selected[i] != cb.Selected[i] {
			return false
		}
	}
	return true
}

func (s *Server) selectQuestion(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}

	var req api.SelectQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	if !exam.AllowSelectiveAnswering {
		response.Fail(c, http.StatusBadRequest, response.ErrNotSelective)
		return
	}

	section := exam.SectionOf(req.QuestionID)
	if section != model.SectionB && section != model.SectionC {
		response.Fail(c, http.StatusBadRequest, response.ErrNotSelective)
		return
	}

	// Mirror the client's invariant: a deselect may not drop the section
	// below its required count.
	if !req.IsSelected {
		count := 0
		for _, sec := range exam.Sections {
			if sec.Name != section {
				continue
			}
			for _, q := range sec.Questions {
				if q.ID != req.QuestionID && s.session.selection[q.ID] {
					count++
				}
			}
		}
		if count < exam.RequiredCount(section) {
			response.Fail(c, http.StatusBadRequest, response.ErrBelowMinimum)
			return
		}
	}

	s.session.selection[req.QuestionID] = req.IsSelected
	response.Success(c, http.StatusOK, gin.H{"is_selected": req.IsSelected})
}

func (s *Server) complete(c *gin.Context) {
	exam := s.examOr404(c)
	if exam == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	if s.session.completed {
		response.Fail(c, http.StatusBadRequest, response.ErrSessionCompleted)
		return
	}
	if len(s.session.answers) == 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrNoAnswers)
		return
	}

	s.session.completed = true
	result := s.gradeLocked(exam)
	s.log.Info().
		Float64("total_score", result.TotalScore).
		Int("answered", result.AnsweredCount).
		Msg("Session completed")
	response.Success(c, http.StatusOK, result)
}

// gradeLocked scores choice questions against the fixture key. Written
// answers are collected for manual grading and contribute only to the
// maximum, matching what the production backend reports at completion.
func (s *Server) gradeLocked(exam *model.Exam) *model.ScoreResult {
	result := &model.ScoreResult{CompletedAt: time.Now().UTC().Format(time.RFC3339)}

	for _, sec := range exam.Sections {
		for _, q := range sec.Questions {
			selective := sec.Name == model.SectionB || sec.Name == model.SectionC
			if exam.AllowSelectiveAnswering && selective && !s.session.selection[q.ID] {
				continue
			}
			result.MaxPossibleScore += q.Points

			a, ok := s.session.answers[q.ID]
			if !ok {
				continue
			}
			result.AnsweredCount++

			if key, graded := s.fixture.Correct[q.ID]; graded {
				if choice, isChoice := a.value.(model.ChoiceAnswer); isChoice &&
					equalChoice(choice, model.ChoiceAnswer{Selected: key}) {
					result.TotalScore += q.Points
				}
			}
		}
	}
	return result
}

// ─── proctoring socket ─────────────────────────────────────────────────

// proctorStream receives violation records from the client and logs them.
func (s *Server) proctorStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Proctor socket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var record map[string]interface{}
		if err := conn.ReadJSON(&record); err != nil {
			return
		}
		s.log.Info().Interface("violation", record).Msg("Proctor event")
	}
}
