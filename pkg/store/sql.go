package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/eventtimings/pkg/models"
)

// SQLStore implements Store on database/sql. SQLite and PostgreSQL differ
// only in their driver, schema types and placeholder style.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name       string
	positional bool // $1, $2 instead of ?
	schema     string
}

// schemaTemplate uses {{BIGINT}} and {{TEXT}} for dialect types
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS runs (
	id {{TEXT}} PRIMARY KEY,
	app_name {{TEXT}} NOT NULL,
	run_name {{TEXT}} NOT NULL,
	finalized_at_ns {{BIGINT}} NOT NULL,
	ranks INTEGER NOT NULL,
	duration_ns {{BIGINT}} NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	run_id {{TEXT}} NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name {{TEXT}} NOT NULL,
	rank INTEGER NOT NULL,
	count {{BIGINT}} NOT NULL,
	total_ns {{BIGINT}} NOT NULL,
	min_ns {{BIGINT}} NOT NULL,
	max_ns {{BIGINT}} NOT NULL,
	data {{TEXT}} NOT NULL,
	PRIMARY KEY (run_id, name, rank)
);

CREATE TABLE IF NOT EXISTS transitions (
	run_id {{TEXT}} NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name {{TEXT}} NOT NULL,
	rank INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	state INTEGER NOT NULL,
	at_ns {{BIGINT}} NOT NULL,
	PRIMARY KEY (run_id, name, rank, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_finalized ON runs(finalized_at_ns);
`

func buildSchema(text, bigint string) string {
	return strings.NewReplacer("{{TEXT}}", text, "{{BIGINT}}", bigint).Replace(schemaTemplate)
}

// rebind rewrites ? placeholders for dialects with positional parameters
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) initSchema() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

// SaveRun stores run with all its statistics in one transaction
func (s *SQLStore) SaveRun(run *models.Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(s.dialect.rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), run.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists > 0 {
		return ErrRunExists
	}

	_, err = tx.Exec(s.dialect.rebind(`
		INSERT INTO runs (id, app_name, run_name, finalized_at_ns, ranks, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.AppName, run.RunName, run.FinalizedAt.UnixNano(), run.Ranks, int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	eventStmt, err := tx.Prepare(s.dialect.rebind(`
		INSERT INTO events (run_id, name, rank, count, total_ns, min_ns, max_ns, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer eventStmt.Close()

	transStmt, err := tx.Prepare(s.dialect.rebind(`
		INSERT INTO transitions (run_id, name, rank, seq, state, at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare transition insert: %w", err)
	}
	defer transStmt.Close()

	for _, e := range run.Events {
		data, err := json.Marshal(nonNil(e.Data))
		if err != nil {
			return fmt.Errorf("failed to encode data of %s: %w", e.Name, err)
		}
		if _, err := eventStmt.Exec(run.ID, e.Name, e.Rank, e.Count,
			int64(e.Total), int64(e.Min), int64(e.Max), string(data)); err != nil {
			return fmt.Errorf("failed to insert event %s on rank %d: %w", e.Name, e.Rank, err)
		}
		for seq, tr := range e.Transitions {
			if _, err := transStmt.Exec(run.ID, e.Name, e.Rank, seq, int(tr.State), tr.At.UnixNano()); err != nil {
				return fmt.Errorf("failed to insert transition of %s: %w", e.Name, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun loads the run with id and all its statistics
func (s *SQLStore) GetRun(id string) (*models.Run, error) {
	run := &models.Run{ID: id}
	var finalizedNs, durationNs int64
	err := s.db.QueryRow(s.dialect.rebind(`
		SELECT app_name, run_name, finalized_at_ns, ranks, duration_ns
		FROM runs WHERE id = ?`), id,
	).Scan(&run.AppName, &run.RunName, &finalizedNs, &run.Ranks, &durationNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.FinalizedAt = time.Unix(0, finalizedNs)
	run.Duration = time.Duration(durationNs)

	rows, err := s.db.Query(s.dialect.rebind(`
		SELECT name, rank, count, total_ns, min_ns, max_ns, data
		FROM events WHERE run_id = ? ORDER BY name, rank`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	type key struct {
		name string
		rank int
	}
	byKey := make(map[key]*models.EventStatistic)
	for rows.Next() {
		e := &models.EventStatistic{}
		var total, min, max int64
		var data string
		if err := rows.Scan(&e.Name, &e.Rank, &e.Count, &total, &min, &max, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Total, e.Min, e.Max = time.Duration(total), time.Duration(min), time.Duration(max)
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data of %s: %w", e.Name, err)
		}
		if len(e.Data) == 0 {
			e.Data = nil
		}
		run.Events = append(run.Events, e)
		byKey[key{e.Name, e.Rank}] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := s.db.Query(s.dialect.rebind(`
		SELECT name, rank, state, at_ns
		FROM transitions WHERE run_id = ? ORDER BY name, rank, seq`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var name string
		var rank, state int
		var atNs int64
		if err := trows.Scan(&name, &rank, &state, &atNs); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		e, ok := byKey[key{name, rank}]
		if !ok {
			continue
		}
		e.Transitions = append(e.Transitions, models.Transition{
			State: models.TimerState(state),
			At:    time.Unix(0, atNs),
		})
	}
	return run, trows.Err()
}

// ListRuns returns every run, most recently finalized first
func (s *SQLStore) ListRuns() ([]*models.RunInfo, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.app_name, r.run_name, r.finalized_at_ns, r.ranks, r.duration_ns,
			(SELECT COUNT(DISTINCT e.name) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		ORDER BY r.finalized_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var infos []*models.RunInfo
	for rows.Next() {
		info := &models.RunInfo{}
		var finalizedNs, durationNs int64
		if err := rows.Scan(&info.ID, &info.AppName, &info.RunName, &finalizedNs,
			&info.Ranks, &durationNs, &info.EventCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.FinalizedAt = time.Unix(0, finalizedNs)
		info.Duration = time.Duration(durationNs)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteRun removes the run with id and its statistics
func (s *SQLStore) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transitions", "events"} {
		if _, err := tx.Exec(s.dialect.rebind("DELETE FROM "+table+" WHERE run_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	res, err := tx.Exec(s.dialect.rebind(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *SQLStore) HealthCheck() error {
	return s.db.Ping()
}

func nonNil(data []int64) []int64 {
	if data == nil {
		return []int64{}
	}
	return data
}

var _ Store = (*SQLStore)(nil)
