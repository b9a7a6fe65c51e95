package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ErrRunNotFound is returned when a run id is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// Run status values.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is one archived pipeline run.
type RunRecord struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ID           string    `json:"id"`
	Message      string    `json:"message,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Collected    int       `json:"collected"`
	Deduplicated int       `json:"deduplicated"`
	Scored       int       `json:"scored"`
	Qualified    int       `json:"qualified"`
	Downgraded   bool      `json:"downgraded"`
}

// EventRecord is one deduplicated event of a run, in dedup output order.
type EventRecord struct {
	PublishedAt    time.Time `json:"published_at"`
	TotalScore     *int      `json:"total_score,omitempty"`
	IsQualified    *bool     `json:"is_qualified,omitempty"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	SimilarSources []string  `json:"similar_sources"`
	Position       int       `json:"position"`
	Selected       bool      `json:"selected"`
}

// SaveRun stores a run and its events in one transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, events []EventRecord) error {
	if run.ID == "" {
		return errors.New("save run: empty id")
	}
	if run.Status == "" {
		run.Status = RunStatusCompleted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, started_at_epoch, finished_at, collected, deduplicated,
			scored, qualified, downgraded, message, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.StartedAt.UnixMilli(),
		formatTime(run.FinishedAt),
		run.Collected, run.Deduplicated, run.Scored, run.Qualified,
		boolToInt(run.Downgraded),
		nullString(run.Message),
		run.Status,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for i, ev := range events {
		sources := ev.SimilarSources
		if sources == nil {
			sources = []string{}
		}
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			return fmt.Errorf("encode similar sources: %w", err)
		}

		var qualified any
		if ev.IsQualified != nil {
			qualified = boolToInt(*ev.IsQualified)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (run_id, position, title, url, source, published_at, similar_sources,
				total_score, is_qualified, selected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, ev.Title, ev.URL, ev.Source,
			formatTime(ev.PublishedAt),
			string(sourcesJSON),
			ev.TotalScore, qualified,
			boolToInt(ev.Selected),
		)
		if err != nil {
			return fmt.Errorf("insert event %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, started_at, finished_at, collected, deduplicated, scored, qualified,
	downgraded, message, status, error`

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.queryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at_epoch DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunEvents returns the events of a run in their original order.
func (s *Store) RunEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.queryContext(ctx, `
		SELECT position, title, url, source, published_at, similar_sources, total_score, is_qualified, selected
		FROM events WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var (
			ev          EventRecord
			url         sql.NullString
			published   sql.NullString
			sourcesJSON string
			score       sql.NullInt64
			qualified   sql.NullInt64
			selected    int
		)
		if err := rows.Scan(&ev.Position, &ev.Title, &url, &ev.Source, &published,
			&sourcesJSON, &score, &qualified, &selected); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.URL = url.String
		ev.PublishedAt = parseTime(published)
		if err := json.Unmarshal([]byte(sourcesJSON), &ev.SimilarSources); err != nil {
			return nil, fmt.Errorf("decode similar sources: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			ev.TotalScore = &v
		}
		if qualified.Valid {
			v := qualified.Int64 != 0
			ev.IsQualified = &v
		}
		ev.Selected = selected != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run        RunRecord
		startedAt  string
		finishedAt sql.NullString
		message    sql.NullString
		errText    sql.NullString
		downgraded int
	)
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Collected, &run.Deduplicated,
		&run.Scored, &run.Qualified, &downgraded, &message, &run.Status, &errText); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(sql.NullString{String: startedAt, Valid: true})
	run.FinishedAt = parseTime(finishedAt)
	run.Downgraded = downgraded != 0
	run.Message = message.String
	run.Error = errText.String
	return &run, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
