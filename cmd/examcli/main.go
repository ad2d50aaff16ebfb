// Command examcli is a terminal exam runner driving the session engine
// against an ExStem backend (or the bundled devserver). It exists for
// development and demos: every engine path — answering, selection toggles,
// timer warnings, integrity signals, forced submission — can be exercised
// from the keyboard.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/engine"
	"github.com/stemsi/exstem-client/internal/integrity"
	"github.com/stemsi/exstem-client/internal/journal"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		fmt.Println("Usage: examcli <exam-id>")
		os.Exit(1)
	}
	examID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Println("Error: invalid exam id")
		os.Exit(1)
	}

	token := cfg.BearerToken
	if token == "" {
		token, err = login(cfg.APIBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.New(cfg.APIBaseURL, api.StaticToken(token), log)
	source := newKeyedSource()

	opts := []engine.Option{
		engine.WithMonitorOptions(integrity.WithGracePeriod(cfg.FullscreenGrace)),
	}
	jrnl, err := journal.Open(cfg.JournalPath, log)
	if err != nil {
		log.Warn().Err(err).Msg("Journal unavailable, continuing without crash recovery")
	} else {
		defer jrnl.Close()
		opts = append(opts, engine.WithJournal(jrnl))
	}

	ctrl := engine.New(client, source, log, opts...)
	defer ctrl.Close()

	// Browsers require a user gesture before granting fullscreen; mirror
	// that by gating the session start on an explicit keypress.
	fmt.Println("=== ExStem Exam Runner ===")
	fmt.Print("Press Enter to go fullscreen and start the exam...")
	bufio.NewReader(os.Stdin).ReadString('\n')
	source.emit(integrity.Signal{Kind: integrity.SignalFullscreenEnter, At: time.Now()})

	if err := ctrl.Load(ctx, examID); err != nil {
		log.Fatal().Err(err).Msg("Could not start session")
	}

	if cfg.ProctorWSURL != "" {
		reporter := integrity.NewReporter(cfg.ProctorWSURL, token, log)
		go reporter.Run(ctx, ctrl.Monitor().Violations())
	}
	go printNotices(ctrl)

	runLoop(ctx, ctrl, source)
}

// login prompts for credentials and exchanges them for a bearer token.
func login(baseURL string) (string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("NISN: ")
	nisn, _ := reader.ReadString('\n')

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	body, _ := json.Marshal(map[string]string{
		"nisn":     strings.TrimSpace(nisn),
		"password": string(password),
	})
	resp, err := http.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Data.Token == "" {
		return "", fmt.Errorf("login rejected (status %d)", resp.StatusCode)
	}
	return envelope.Data.Token, nil
}

func printNotices(ctrl *engine.Controller) {
	for n := range ctrl.Notices() {
		switch n.Kind {
		case engine.NoticeTimerWarning:
			fmt.Println("\n[!] 5 minutes remaining")
		case engine.NoticeTimerCritical:
			fmt.Println("\n[!!] 1 minute remaining")
		case engine.NoticeForcedSubmit:
			fmt.Printf("\n[!!!] Forced submission: %s\n", n.Reason)
		case engine.NoticeSubmitFailed:
			fmt.Printf("\n[x] Submit failed: %v\n", n.Err)
		case engine.NoticeStateChanged:
			if n.State == engine.StateCompleted {
				fmt.Println("\n=== Exam completed ===")
			}
		}
	}
}

func runLoop(ctx context.Context, ctrl *engine.Controller, source *keyedSource) {
	exam := ctrl.Exam()
	index := questionIndex(exam)
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("\n%s — %d questions, %v remaining\n", exam.Title, len(index), ctrl.Remaining())
	fmt.Println("Commands: list | answer <n> <value> | save <n> | toggle <n> | summary | status | submit | sim <signal> | quit")

	for ctrl.State() == engine.StateActive || ctrl.State() == engine.StateSubmitting {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)

		switch parts[0] {
		case "list":
			printQuestions(ctrl, exam, index)
		case "answer":
			doAnswer(ctx, ctrl, index, parts)
		case "save":
			doSave(ctx, ctrl, index, parts)
		case "toggle":
			doToggle(ctx, ctrl, index, parts)
		case "summary":
			for _, sec := range []string{model.SectionB, model.SectionC} {
				s := ctrl.SelectionSummary(sec)
				fmt.Printf("Section %s: %d selected / %d required (complete=%v)\n", sec, s.Selected, s.Required, s.Complete)
			}
		case "status":
			fmt.Printf("state=%s remaining=%v violations=%d\n", ctrl.State(), ctrl.Remaining(), ctrl.ViolationCount())
		case "submit":
			if result, err := ctrl.Submit(ctx); err != nil {
				fmt.Printf("Submit failed: %v\n", err)
			} else if result != nil {
				fmt.Printf("Score: %.1f / %.1f\n", result.TotalScore, result.MaxPossibleScore)
				return
			}
		case "sim":
			doSim(source, parts)
		case "quit":
			return
		case "":
		default:
			fmt.Println("Unknown command")
		}
	}

	if result := ctrl.Result(); result != nil {
		fmt.Printf("Final score: %.1f / %.1f\n", result.TotalScore, result.MaxPossibleScore)
	}
}

func questionIndex(exam *model.Exam) []*model.Question {
	var index []*model.Question
	for si := range exam.Sections {
		for qi := range exam.Sections[si].Questions {
			index = append(index, &exam.Sections[si].Questions[qi])
		}
	}
	return index
}

func questionAt(index []*model.Question, parts []string) *model.Question {
	if len(parts) < 2 {
		fmt.Println("Question number required")
		return nil
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 || n > len(index) {
		fmt.Println("Invalid question number")
		return nil
	}
	return index[n-1]
}

func printQuestions(ctrl *engine.Controller, exam *model.Exam, index []*model.Question) {
	for i, q := range index {
		qtype, _ := ctrl.QuestionType(q.ID)
		mark := " "
		if a, ok := ctrl.Answer(q.ID); ok && a.Answered {
			mark = "*"
		}
		sel := ""
		if !ctrl.IsSelected(q.ID) {
			sel = " (not selected)"
		}
		fmt.Printf("%s %2d. [%s/%s]%s %s\n", mark, i+1, q.Section, qtype, sel, q.Text)
		for _, opt := range q.Options {
			fmt.Printf("       - %s\n", opt)
		}
	}
}

func doAnswer(ctx context.Context, ctrl *engine.Controller, index []*model.Question, parts []string) {
	q := questionAt(index, parts)
	if q == nil {
		return
	}
	if len(parts) < 3 {
		fmt.Println("Answer value required")
		return
	}

	qtype, _ := ctrl.QuestionType(q.ID)
	value, err := parseValue(qtype, parts[2])
	if err != nil {
		fmt.Printf("Bad value: %v\n", err)
		return
	}
	if err := ctrl.SetAnswer(ctx, q.ID, value); err != nil {
		fmt.Printf("Rejected: %v\n", err)
		return
	}
	if qtype.Deferred() {
		fmt.Println("Saved locally (deferred); use 'save' to push")
	}
}

// parseValue maps a command-line token onto the typed answer value:
// options/items are comma-separated, matching and placement use k=v pairs.
func parseValue(qtype model.QuestionType, raw string) (model.AnswerValue, error) {
	switch qtype {
	case model.TypeMultipleChoice, model.TypeMultipleAnswer, model.TypeTrueFalse:
		return model.ChoiceAnswer{Selected: splitList(raw)}, nil
	case model.TypeMatching, model.TypeDragDrop:
		pairs := make(map[string]string)
		for _, part := range splitList(raw) {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("expected key=value, got %q", part)
			}
			pairs[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
		if qtype == model.TypeMatching {
			return model.MatchingAnswer{Pairs: pairs}, nil
		}
		return model.PlacementAnswer{Placements: pairs}, nil
	case model.TypeOrdering:
		return model.OrderingAnswer{Order: splitList(raw)}, nil
	default:
		return model.TextAnswer{Text: raw}, nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func doSave(ctx context.Context, ctrl *engine.Controller, index []*model.Question, parts []string) {
	q := questionAt(index, parts)
	if q == nil {
		return
	}
	if err := ctrl.SaveQuestion(ctx, q.ID); err != nil {
		fmt.Printf("Save failed (value kept locally): %v\n", err)
		return
	}
	fmt.Println("Saved")
}

func doToggle(ctx context.Context, ctrl *engine.Controller, index []*model.Question, parts []string) {
	q := questionAt(index, parts)
	if q == nil {
		return
	}
	result, err := ctrl.ToggleSelection(ctx, q.ID)
	if err != nil {
		fmt.Printf("Toggle failed: %v\n", err)
		return
	}
	fmt.Printf("Toggle: %s\n", result)
}

// doSim injects integrity signals so proctoring paths can be demoed.
func doSim(source *keyedSource, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Signals: exit-fullscreen | enter-fullscreen | hide-tab | key <combo> | back")
		return
	}
	now := time.Now()
	switch parts[1] {
	case "exit-fullscreen":
		source.emit(integrity.Signal{Kind: integrity.SignalFullscreenExit, At: now})
	case "enter-fullscreen":
		source.emit(integrity.Signal{Kind: integrity.SignalFullscreenEnter, At: now})
	case "hide-tab":
		source.emit(integrity.Signal{Kind: integrity.SignalTabHidden, At: now})
	case "key":
		key := "ctrl+c"
		if len(parts) > 2 {
			key = parts[2]
		}
		source.emit(integrity.Signal{Kind: integrity.SignalKeyDown, Key: key, At: now})
	case "back":
		source.emit(integrity.Signal{Kind: integrity.SignalNavigationBack, At: now})
	default:
		fmt.Println("Unknown signal")
	}
}

// keyedSource is an integrity.Source fed from CLI commands.
type keyedSource struct {
	ch chan integrity.Signal
}

func newKeyedSource() *keyedSource {
	return &keyedSource{ch: make(chan integrity.Signal, 16)}
}

func (s *keyedSource) Subscribe() (<-chan integrity.Signal, func()) {
	return s.ch, func() {}
}

func (s *keyedSource) emit(sig integrity.Signal) {
	select {
	case s.ch <- sig:
	default:
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
