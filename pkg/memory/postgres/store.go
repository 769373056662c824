// Package postgres provides a PostgreSQL-backed implementation of the meeting
// archive.
//
// A single [pgxpool.Pool] serves both the transcript log and the answer log.
// [Migrate] creates the required tables and indexes, including a GIN full-text
// search index over transcript text.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.WriteLine(ctx, meetingID, line)
//	lines, _ := store.Recent(ctx, meetingID, 5*time.Minute)
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearsay-live/hearsay/pkg/memory"
)

var _ memory.MeetingStore = (*Store)(nil)

const ddlMeetingLines = `
CREATE TABLE IF NOT EXISTS meeting_lines (
    id           BIGSERIAL    PRIMARY KEY,
    meeting_id   TEXT         NOT NULL,
    speaker      TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_meeting_lines_meeting_id
    ON meeting_lines (meeting_id);

CREATE INDEX IF NOT EXISTS idx_meeting_lines_meeting_timestamp
    ON meeting_lines (meeting_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_meeting_lines_fts
    ON meeting_lines USING GIN (to_tsvector('english', text));
`

const ddlMeetingAnswers = `
CREATE TABLE IF NOT EXISTS meeting_answers (
    id            BIGSERIAL    PRIMARY KEY,
    meeting_id    TEXT         NOT NULL,
    question      TEXT         NOT NULL,
    question_type TEXT         NOT NULL DEFAULT '',
    answer        TEXT         NOT NULL,
    timestamp     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_meeting_answers_meeting_id
    ON meeting_answers (meeting_id);

CREATE INDEX IF NOT EXISTS idx_meeting_answers_meeting_timestamp
    ON meeting_answers (meeting_id, timestamp);
`

// Migrate creates all tables and indexes required by Store. It is idempotent
// and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlMeetingLines, ddlMeetingAnswers} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Store is the PostgreSQL-backed meeting archive. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn and
// runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WriteLine implements [memory.MeetingStore].
func (s *Store) WriteLine(ctx context.Context, meetingID string, line memory.Line) error {
	const q = `
		INSERT INTO meeting_lines (meeting_id, speaker, text, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		meetingID,
		line.Speaker,
		line.Text,
		line.Timestamp,
		line.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("meeting store: write line: %w", err)
	}
	return nil
}

// WriteAnswer implements [memory.MeetingStore].
func (s *Store) WriteAnswer(ctx context.Context, meetingID string, answer memory.Answer) error {
	const q = `
		INSERT INTO meeting_answers (meeting_id, question, question_type, answer, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		meetingID,
		answer.Question,
		answer.QuestionType,
		answer.Text,
		answer.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("meeting store: write answer: %w", err)
	}
	return nil
}

// Recent implements [memory.MeetingStore]. It returns all lines for meetingID
// whose timestamp is no earlier than time.Now()-within, ordered chronologically
// (oldest first).
func (s *Store) Recent(ctx context.Context, meetingID string, within time.Duration) ([]memory.Line, error) {
	const q = `
		SELECT speaker, text, timestamp, duration_ns
		FROM   meeting_lines
		WHERE  meeting_id = $1
		  AND  timestamp  >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, meetingID, within.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("meeting store: recent: %w", err)
	}
	return collectLines(rows)
}

// Search implements [memory.MeetingStore]. It performs a PostgreSQL full-text
// search over the text column and applies optional filters from opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Line, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.MeetingID != "" {
		conditions = append(conditions, "meeting_id = "+next(opts.MeetingID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}

	q := "SELECT speaker, text, timestamp, duration_ns\n" +
		"FROM   meeting_lines\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("meeting store: search: %w", err)
	}
	return collectLines(rows)
}

// Answers returns all answers recorded for meetingID, oldest first.
func (s *Store) Answers(ctx context.Context, meetingID string) ([]memory.Answer, error) {
	const q = `
		SELECT question, question_type, answer, timestamp
		FROM   meeting_answers
		WHERE  meeting_id = $1
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("meeting store: answers: %w", err)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Answer, error) {
		var a memory.Answer
		err := row.Scan(&a.Question, &a.QuestionType, &a.Text, &a.Timestamp)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("meeting store: scan answers: %w", err)
	}
	if answers == nil {
		answers = []memory.Answer{}
	}
	return answers, nil
}

// collectLines scans pgx rows into a slice of Line values.
func collectLines(rows pgx.Rows) ([]memory.Line, error) {
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Line, error) {
		var (
			l          memory.Line
			durationNS int64
		)
		if err := row.Scan(&l.Speaker, &l.Text, &l.Timestamp, &durationNS); err != nil {
			return memory.Line{}, err
		}
		l.Duration = time.Duration(durationNS)
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("meeting store: scan rows: %w", err)
	}
	if lines == nil {
		lines = []memory.Line{}
	}
	return lines, nil
}
