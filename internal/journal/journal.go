// Package journal persists every locally entered answer to a sqlite file
// so user input survives a crash or forced reload, not just a failed sync.
// Rows that never reached the server are replayed into the store on resume.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/stemsi/exstem-client/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS answer_journal (
	session_id    TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	question_type TEXT NOT NULL,
	value_json    TEXT NOT NULL,
	synced        INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, question_id)
);`

// Entry is one journaled answer.
type Entry struct {
	QuestionID   uuid.UUID
	QuestionType model.QuestionType
	Value        model.AnswerValue
	Synced       bool
}

// Journal is an append-latest store of local answers keyed by
// (session, question).
type Journal struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates or opens the journal file and ensures the schema exists.
func Open(path string, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// The journal is written from the engine's event goroutines; a single
	// connection sidesteps sqlite writer contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	return &Journal{
		db:  db,
		log: log.With().Str("component", "answer_journal").Logger(),
	}, nil
}

// Record upserts the latest value for a question.
func (j *Journal) Record(ctx context.Context, sessionID, questionID uuid.UUID, questionType model.QuestionType, value model.AnswerValue, synced bool) error {
	encoded, err := model.EncodeAnswerValue(value)
	if err != nil {
		return fmt.Errorf("encode journal value: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO answer_journal (session_id, question_id, question_type, value_json, synced, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET value_json = excluded.value_json,
		     question_type = excluded.question_type,
		     synced = excluded.synced,
		     updated_at = excluded.updated_at`,
		sessionID.String(), questionID.String(), string(questionType),
		string(encoded), boolToInt(synced), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// MarkSynced flips a row to synced after the server acknowledged it.
func (j *Journal) MarkSynced(ctx context.Context, sessionID, questionID uuid.UUID) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE answer_journal SET synced = 1 WHERE session_id = ? AND question_id = ?`,
		sessionID.String(), questionID.String(),
	)
	return err
}

// Unsynced returns the entries for a session that never reached the server,
// for replay into the answer store on resume.
func (j *Journal) Unsynced(ctx context.Context, sessionID uuid.UUID) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT question_id, question_type, value_json, synced
		 FROM answer_journal WHERE session_id = ? AND synced = 0`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			qidStr, typeStr, valueJSON string
			syncedInt                  int
		)
		if err := rows.Scan(&qidStr, &typeStr, &valueJSON, &syncedInt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		qid, err := uuid.Parse(qidStr)
		if err != nil {
			j.log.Warn().Str("question_id", qidStr).Msg("Dropping journal row with bad question id")
			continue
		}
		value, err := model.DecodeAnswerValue([]byte(valueJSON))
		if err != nil {
			j.log.Warn().Err(err).Str("question_id", qidStr).Msg("Dropping undecodable journal row")
			continue
		}

		entries = append(entries, Entry{
			QuestionID:   qid,
			QuestionType: model.QuestionType(typeStr),
			Value:        value,
			Synced:       syncedInt != 0,
		})
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error { return j.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
