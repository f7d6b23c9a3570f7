// Package history keeps a record of past runs in a SQLite database so a
// run can be compared with the previous one against the same API.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/waftester/mediaprobe/pkg/finding"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("history: no matching run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	started_at          INTEGER NOT NULL,
	target              TEXT NOT NULL,
	version             TEXT NOT NULL,
	exit_code           INTEGER NOT NULL,
	probes_total        INTEGER NOT NULL,
	probes_vulnerable   INTEGER NOT NULL,
	probes_errored      INTEGER NOT NULL,
	probes_passed       INTEGER NOT NULL,
	worst_severity      TEXT NOT NULL,
	scenarios_total     INTEGER NOT NULL,
	scenarios_succeeded INTEGER NOT NULL,
	duration_ms         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target, started_at);
CREATE TABLE IF NOT EXISTS findings (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	probe      TEXT NOT NULL,
	vulnerable INTEGER NOT NULL,
	errored    INTEGER NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	PRIMARY KEY (run_id, probe)
);`

// Record is one stored run.
type Record struct {
	ID                 string         `json:"id"`
	StartedAt          time.Time      `json:"started_at"`
	Target             string         `json:"target"`
	Version            string         `json:"version"`
	ExitCode           int            `json:"exit_code"`
	Probes             finding.Tally  `json:"probes"`
	ScenariosTotal     int            `json:"scenarios_total"`
	ScenariosSucceeded int            `json:"scenarios_succeeded"`
	DurationMs         int64          `json:"duration_ms"`
	Findings           []ProbeVerdict `json:"findings"`
}

// ProbeVerdict is the stored verdict of one probe.
type ProbeVerdict struct {
	Probe      string           `json:"probe"`
	Vulnerable bool             `json:"vulnerable"`
	Errored    bool             `json:"errored"`
	Severity   finding.Severity `json:"severity"`
	Message    string           `json:"message"`
}

// VerdictsFrom converts probe results into stored verdicts.
func VerdictsFrom(results []finding.ProbeResult) []ProbeVerdict {
	out := make([]ProbeVerdict, len(results))
	for i, r := range results {
		out[i] = ProbeVerdict{
			Probe:      r.Probe,
			Vulnerable: r.Vulnerable,
			Errored:    r.Errored(),
			Severity:   r.Severity,
			Message:    r.Message,
		}
	}
	return out
}

// Store persists run records.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (and creates if needed) the database at path. ":memory:"
// gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// One connection: an in-memory database is per connection, and the
	// CLI never writes concurrently.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a run and its probe verdicts. Saving an existing ID
// replaces it.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if r.ID == "" {
		return errors.New("history: record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("history: replace run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		id, started_at, target, version, exit_code,
		probes_total, probes_vulnerable, probes_errored, probes_passed, worst_severity,
		scenarios_total, scenarios_succeeded, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.Target, r.Version, r.ExitCode,
		r.Probes.Total, r.Probes.Vulnerable, r.Probes.Errored, r.Probes.Passed, string(r.Probes.Worst),
		r.ScenariosTotal, r.ScenariosSucceeded, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	for _, f := range r.Findings {
		_, err := tx.ExecContext(ctx, `INSERT INTO findings (run_id, probe, vulnerable, errored, severity, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, f.Probe, f.Vulnerable, f.Errored, string(f.Severity), f.Message)
		if err != nil {
			return fmt.Errorf("history: insert finding %s: %w", f.Probe, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// List returns up to limit runs, newest first. An empty target lists all
// targets; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, target string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT id, started_at, target, version, exit_code,
		probes_total, probes_vulnerable, probes_errored, probes_passed, worst_severity,
		scenarios_total, scenarios_succeeded, duration_ms
		FROM runs`
	var args []any
	if target != "" {
		q += ` WHERE target = ?`
		args = append(args, target)
	}
	q += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			started int64
			worst   string
		)
		if err := rows.Scan(&r.ID, &started, &r.Target, &r.Version, &r.ExitCode,
			&r.Probes.Total, &r.Probes.Vulnerable, &r.Probes.Errored, &r.Probes.Passed, &worst,
			&r.ScenariosTotal, &r.ScenariosSucceeded, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.Probes.Worst = finding.Severity(worst)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	// Release the single connection before querying findings.
	rows.Close()

	for i := range out {
		f, err := s.findings(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Findings = f
	}
	return out, nil
}

func (s *Store) findings(ctx context.Context, runID string) ([]ProbeVerdict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT probe, vulnerable, errored, severity, message FROM findings WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query findings: %w", err)
	}
	defer rows.Close()

	out := []ProbeVerdict{}
	for rows.Next() {
		var (
			v   ProbeVerdict
			sev string
		)
		if err := rows.Scan(&v.Probe, &v.Vulnerable, &v.Errored, &sev, &v.Message); err != nil {
			return nil, fmt.Errorf("history: scan finding: %w", err)
		}
		v.Severity = finding.Severity(sev)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Latest returns the newest run for target.
func (s *Store) Latest(ctx context.Context, target string) (*Record, error) {
	recs, err := s.List(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// Previous returns the newest run for the same target as r, excluding r.
func (s *Store) Previous(ctx context.Context, r *Record) (*Record, error) {
	recs, err := s.List(ctx, r.Target, 0)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ID != r.ID && !recs[i].StartedAt.After(r.StartedAt) {
			return &recs[i], nil
		}
	}
	return nil, ErrNotFound
}

// Comparison is the difference between two runs.
type Comparison struct {
	BaseID          string   `json:"base_id"`
	CurrentID       string   `json:"current_id"`
	VulnerableDelta int      `json:"vulnerable_delta"`
	NewlyVulnerable []string `json:"newly_vulnerable"`
	Fixed           []string `json:"fixed"`
	// Regressed is set when the current run flags more probes, or any
	// probe the base run did not.
	Regressed bool `json:"regressed"`
}

// Compare reports what changed from base to current.
func Compare(base, current *Record) Comparison {
	c := Comparison{
		BaseID:          base.ID,
		CurrentID:       current.ID,
		VulnerableDelta: current.Probes.Vulnerable - base.Probes.Vulnerable,
		NewlyVulnerable: []string{},
		Fixed:           []string{},
	}
	was := vulnerableSet(base)
	now := vulnerableSet(current)
	for p := range now {
		if !was[p] {
			c.NewlyVulnerable = append(c.NewlyVulnerable, p)
		}
	}
	for p := range was {
		if !now[p] {
			c.Fixed = append(c.Fixed, p)
		}
	}
	slices.Sort(c.NewlyVulnerable)
	slices.Sort(c.Fixed)
	c.Regressed = c.VulnerableDelta > 0 || len(c.NewlyVulnerable) > 0
	return c
}

func vulnerableSet(r *Record) map[string]bool {
	m := make(map[string]bool, len(r.Findings))
	for _, f := range r.Findings {
		if f.Vulnerable {
			m[f.Probe] = true
		}
	}
	return m
}
