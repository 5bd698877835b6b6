// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive persists pipeline runs in SQLite: the input and final
// drafts, the stage report, the evidence records, and the reference list.
// Aborted runs are archived too, with the failing stage and kind.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/internal/evidence"
	"github.com/pdiddy/cite-engine/internal/pipeline"
	"github.com/pdiddy/cite-engine/internal/record"
	"github.com/pdiddy/cite-engine/internal/references"
	"github.com/pdiddy/cite-engine/pkg/types"
)

// ErrNotFound is returned when no archived run matches an id.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned when an id prefix matches more than one run.
var ErrAmbiguous = errors.New("run id prefix is ambiguous")

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Export formats.
const (
	FormatYAML     = "yaml"
	FormatCSL      = "csl"
	FormatEvidence = "evidence"
)

// Run is one archived pipeline run.
type Run struct {
	ID          string                 `yaml:"id"`
	StartedAt   time.Time              `yaml:"started_at"`
	Status      string                 `yaml:"status"`
	FailedStage string                 `yaml:"failed_stage,omitempty"`
	Kind        pipeline.Kind          `yaml:"kind,omitempty"`
	Input       string                 `yaml:"input"`
	Output      string                 `yaml:"output,omitempty"`
	Report      pipeline.Report        `yaml:"report"`
	Evidence    []types.EvidenceRecord `yaml:"evidence"`
	References  []string               `yaml:"references"`
}

// NewRun captures the outcome of an orchestrator run. A failed run keeps
// the artifacts committed before the failure but has no output draft.
func NewRun(startedAt time.Time, store *record.Store, report pipeline.Report, runErr error) Run {
	run := Run{
		ID:         uuid.NewString(),
		StartedAt:  startedAt.UTC(),
		Status:     StatusCompleted,
		Input:      store.OriginalDraft(),
		Report:     report,
		Evidence:   store.Evidence(),
		References: store.References(),
	}
	if runErr == nil {
		run.Output = store.Draft()
		return run
	}

	run.Status = StatusAborted
	var se *pipeline.StageError
	if errors.As(runErr, &se) {
		run.FailedStage = se.Stage
		run.Kind = se.Kind
	} else {
		run.Kind = pipeline.KindFatal
	}
	return run
}

// Summary is one row of List.
type Summary struct {
	ID          string
	StartedAt   time.Time
	Status      string
	FailedStage string
	Records     int
}

// Hit is an evidence record matched by Search.
type Hit struct {
	RunID  string
	Record types.EvidenceRecord
}

// Archive is the run database.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive database at path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a := &Archive{db: db}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return a, nil
}

// Close releases the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			status TEXT NOT NULL,
			failed_stage TEXT,
			kind TEXT,
			input TEXT NOT NULL,
			output TEXT,
			report TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS evidence (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			topic TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			authors TEXT,
			year INTEGER,
			venue TEXT,
			key_findings TEXT NOT NULL,
			relevance TEXT NOT NULL,
			quote TEXT,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS reference_lines (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			line TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save stores run in a single transaction.
func (a *Archive) Save(ctx context.Context, run Run) error {
	report, err := yaml.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, failed_stage, kind, input, output, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.Status,
		run.FailedStage, string(run.Kind), run.Input, run.Output, string(report),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO evidence (run_id, id, topic, url, title, authors, year, venue, key_findings, relevance, quote)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing evidence insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Evidence {
		authorsJSON, _ := json.Marshal(r.Authors)
		findingsJSON, _ := json.Marshal(r.KeyFindings)
		_, err := stmt.ExecContext(ctx,
			run.ID, r.ID, string(r.Topic), r.URL, r.Title, string(authorsJSON),
			r.Year, r.Venue, string(findingsJSON), r.Relevance, r.Quote,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	for i, line := range run.References {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reference_lines (run_id, position, line) VALUES (?, ?, ?)`,
			run.ID, i, line,
		); err != nil {
			return fmt.Errorf("inserting reference %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs first. A non-positive limit returns
// every run.
func (a *Archive) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT r.id, r.started_at, r.status, COALESCE(r.failed_stage, ''),
			(SELECT count(*) FROM evidence e WHERE e.run_id = r.id)
		 FROM runs r ORDER BY r.started_at DESC, r.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s       Summary
			started string
		)
		if err := rows.Scan(&s.ID, &started, &s.Status, &s.FailedStage, &s.Records); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		s.StartedAt, _ = time.Parse(timeLayout, started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get loads the run whose id equals or starts with id.
func (a *Archive) Get(ctx context.Context, id string) (Run, error) {
	fullID, err := a.resolve(ctx, id)
	if err != nil {
		return Run{}, err
	}

	var (
		run     Run
		started string
		kind    string
		report  string
	)
	err = a.db.QueryRowContext(ctx,
		`SELECT id, started_at, status, COALESCE(failed_stage, ''), COALESCE(kind, ''),
			input, COALESCE(output, ''), COALESCE(report, '')
		 FROM runs WHERE id = ?`, fullID,
	).Scan(&run.ID, &started, &run.Status, &run.FailedStage, &kind, &run.Input, &run.Output, &report)
	if err != nil {
		return Run{}, fmt.Errorf("loading run %s: %w", fullID, err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	run.Kind = pipeline.Kind(kind)
	if err := yaml.Unmarshal([]byte(report), &run.Report); err != nil {
		return Run{}, fmt.Errorf("decoding report of run %s: %w", fullID, err)
	}

	if run.Evidence, err = a.records(ctx, fullID); err != nil {
		return Run{}, err
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT line FROM reference_lines WHERE run_id = ? ORDER BY position`, fullID)
	if err != nil {
		return Run{}, fmt.Errorf("loading references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return Run{}, fmt.Errorf("scanning reference: %w", err)
		}
		run.References = append(run.References, line)
	}
	return run, rows.Err()
}

func (a *Archive) resolve(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrNotFound
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`, escapeLike(id)+"%", id)
	if err != nil {
		return "", fmt.Errorf("resolving run %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var got string
		if err := rows.Scan(&got); err != nil {
			return "", err
		}
		if got == id {
			return got, nil
		}
		ids = append(ids, got)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%s: %w", id, ErrAmbiguous)
	}
}

// Search returns evidence records from any run whose title or key findings
// contain query, case-insensitively. Newest runs come first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(query) + "%"

	rows, err := a.db.QueryContext(ctx,
		`SELECT e.run_id, e.id, e.topic, e.url, e.title, COALESCE(e.authors, ''), COALESCE(e.year, 0),
			COALESCE(e.venue, ''), e.key_findings, e.relevance, COALESCE(e.quote, '')
		 FROM evidence e JOIN runs r ON r.id = e.run_id
		 WHERE e.title LIKE ? ESCAPE '\' OR e.key_findings LIKE ? ESCAPE '\'
		 ORDER BY r.started_at DESC, e.run_id, CAST(substr(e.id, 3) AS INTEGER)
		 LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching evidence: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := scanRecord(rows, &h.RunID, &h.Record); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (a *Archive) records(ctx context.Context, runID string) ([]types.EvidenceRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT run_id, id, topic, url, title, COALESCE(authors, ''), COALESCE(year, 0),
			COALESCE(venue, ''), key_findings, relevance, COALESCE(quote, '')
		 FROM evidence WHERE run_id = ? ORDER BY CAST(substr(id, 3) AS INTEGER)`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading evidence: %w", err)
	}
	defer rows.Close()

	var out []types.EvidenceRecord
	for rows.Next() {
		var (
			owner string
			r     types.EvidenceRecord
		)
		if err := scanRecord(rows, &owner, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows, runID *string, r *types.EvidenceRecord) error {
	var topic, authors, findings string
	if err := rows.Scan(runID, &r.ID, &topic, &r.URL, &r.Title, &authors, &r.Year,
		&r.Venue, &findings, &r.Relevance, &r.Quote); err != nil {
		return fmt.Errorf("scanning evidence: %w", err)
	}
	r.Topic = types.Topic(topic)
	if authors != "" && authors != "null" {
		if err := json.Unmarshal([]byte(authors), &r.Authors); err != nil {
			return fmt.Errorf("decoding authors of %s: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(findings), &r.KeyFindings); err != nil {
		return fmt.Errorf("decoding findings of %s: %w", r.ID, err)
	}
	return nil
}

// Export writes the run in format: the full run as YAML, or its evidence
// records as CSL-YAML.
func (a *Archive) Export(ctx context.Context, id, format string, w io.Writer) error {
	run, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(run)
	case FormatCSL:
		return references.FormatCSL(run.Evidence, w)
	case FormatEvidence:
		data, err := evidence.MarshalRecords(run.Evidence)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown export format %q: use yaml, csl or evidence", format)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
