// Package store persists synthesized shield artifacts: gain checkpoints,
// shield entries, synthesis runs, and the per-step decision and violation
// logs surfaced to the metrics layer.
package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/shield"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS synthesis_runs (
	run_id        TEXT PRIMARY KEY,
	benchmark     TEXT NOT NULL,
	seed          INTEGER NOT NULL,
	budget        INTEGER NOT NULL,
	horizon       INTEGER,
	policy_first  INTEGER,
	outcome       TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shield_entries (
	entry_id      TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	gain          BLOB NOT NULL,
	halfspace_h   BLOB NOT NULL,
	halfspace_c   BLOB NOT NULL,
	cover_lower   BLOB NOT NULL,
	cover_upper   BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES synthesis_runs(run_id)
);

CREATE TABLE IF NOT EXISTS step_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	episode       INTEGER NOT NULL,
	step          INTEGER NOT NULL,
	mode          TEXT NOT NULL,
	entry_idx     INTEGER NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES synthesis_runs(run_id)
);

CREATE TABLE IF NOT EXISTS violations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	episode       INTEGER NOT NULL,
	step          INTEGER NOT NULL,
	state         BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES synthesis_runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store manages shield artifacts in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by inspection tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region runs

// BeginRun records the start of a synthesis run and returns its id.
func (s *Store) BeginRun(benchmark string, seed int64, budget int) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO synthesis_runs (run_id, benchmark, seed, budget, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, benchmark, seed, budget, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a synthesis run.
func (s *Store) FinishRun(runID, outcome string) error {
	_, err := s.db.Exec(`UPDATE synthesis_runs SET outcome = ? WHERE run_id = ?`, outcome, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// #endregion runs

// #region stack-persistence

// SaveStack persists every entry of a stack under the run, replacing any
// entries saved for it before.
func (s *Store) SaveStack(runID string, st *shield.Stack) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM shield_entries WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, e := range st.Entries() {
		_, err := tx.Exec(
			`INSERT INTO shield_entries (entry_id, run_id, idx, gain, halfspace_h, halfspace_c, cover_lower, cover_upper, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, i,
			encodeMatrix(e.K), encodeMatrix(e.Inv.H), encodeVector(e.Inv.C),
			encodeVector(e.Cover.Lower), encodeVector(e.Cover.Upper), now,
		)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	pf := 0
	if st.PolicyFirst() {
		pf = 1
	}
	_, err = tx.Exec(
		`UPDATE synthesis_runs SET horizon = ?, policy_first = ? WHERE run_id = ?`,
		st.Horizon(), pf, runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return tx.Commit()
}

// LoadStack rebuilds an equivalent stack from a run's persisted entries
// without re-running synthesis.
func (s *Store) LoadStack(runID string) (*shield.Stack, error) {
	var horizon sql.NullInt64
	var pf sql.NullInt64
	err := s.db.QueryRow(
		`SELECT horizon, policy_first FROM synthesis_runs WHERE run_id = ?`, runID,
	).Scan(&horizon, &pf)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if !horizon.Valid {
		return nil, fmt.Errorf("run %s has no persisted stack", runID)
	}

	rows, err := s.db.Query(
		`SELECT gain, halfspace_h, halfspace_c, cover_lower, cover_upper
		 FROM shield_entries WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var entries []shield.Entry
	for rows.Next() {
		var gain, hBlob, cBlob, loBlob, hiBlob []byte
		if err := rows.Scan(&gain, &hBlob, &cBlob, &loBlob, &hiBlob); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		k, err := decodeMatrix(gain)
		if err != nil {
			return nil, fmt.Errorf("decode gain: %w", err)
		}
		h, err := decodeMatrix(hBlob)
		if err != nil {
			return nil, fmt.Errorf("decode halfspace: %w", err)
		}
		c, err := decodeVector(cBlob)
		if err != nil {
			return nil, fmt.Errorf("decode bias: %w", err)
		}
		lo, err := decodeVector(loBlob)
		if err != nil {
			return nil, fmt.Errorf("decode cover lower: %w", err)
		}
		hi, err := decodeVector(hiBlob)
		if err != nil {
			return nil, fmt.Errorf("decode cover upper: %w", err)
		}
		entries = append(entries, shield.Entry{
			K:     k,
			Inv:   invariant.Polytope{H: h, C: c},
			Cover: invariant.Cover{Lower: lo, Upper: hi},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shield.NewStack(entries, int(horizon.Int64), pf.Int64 == 1)
}

// LatestRun returns the most recent run id for a benchmark that has a
// persisted stack, or sql.ErrNoRows when none exists.
func (s *Store) LatestRun(benchmark string) (string, error) {
	var runID string
	err := s.db.QueryRow(
		`SELECT run_id FROM synthesis_runs
		 WHERE benchmark = ? AND horizon IS NOT NULL
		 ORDER BY created_at DESC LIMIT 1`, benchmark,
	).Scan(&runID)
	if err != nil {
		return "", fmt.Errorf("latest run for %s: %w", benchmark, err)
	}
	return runID, nil
}

// #endregion stack-persistence

// #region step-log

// StepRecord is one dispatched control step.
type StepRecord struct {
	RunID      string
	Episode    int
	Step       int
	Mode       string
	EntryIndex int
	Reason     string
}

// LogStep appends a dispatch decision to the step log.
func (s *Store) LogStep(rec StepRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO step_log (run_id, episode, step, mode, entry_idx, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Episode, rec.Step, rec.Mode, rec.EntryIndex,
		nullIfEmpty(rec.Reason), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log step: %w", err)
	}
	return nil
}

// CountSteps returns per-mode step counts for a run.
func (s *Store) CountSteps(runID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT mode, COUNT(*) FROM step_log WHERE run_id = ? GROUP BY mode`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("count steps: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[mode] = n
	}
	return counts, rows.Err()
}

// LogViolation records a hard safety violation: the episode state fell
// outside every known cover box.
func (s *Store) LogViolation(runID string, episode, step int, x *mat.VecDense) error {
	_, err := s.db.Exec(
		`INSERT INTO violations (run_id, episode, step, state, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, episode, step, encodeVector(x), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log violation: %w", err)
	}
	return nil
}

// CountViolations returns the violation total for a run.
func (s *Store) CountViolations(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM violations WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}

// #endregion step-log

// #region blob-encoding
// Matrices travel as little-endian blobs: two uint32 dims then row-major
// float64 bits.
func encodeMatrix(m *mat.Dense) []byte {
	r, c := m.Dims()
	buf := make([]byte, 8+r*c*8)
	binary.LittleEndian.PutUint32(buf, uint32(r))
	binary.LittleEndian.PutUint32(buf[4:], uint32(c))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			binary.LittleEndian.PutUint64(buf[8+(i*c+j)*8:], math.Float64bits(m.At(i, j)))
		}
	}
	return buf
}

func decodeMatrix(b []byte) (*mat.Dense, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("matrix blob too short: %d bytes", len(b))
	}
	r := int(binary.LittleEndian.Uint32(b))
	c := int(binary.LittleEndian.Uint32(b[4:]))
	if len(b) != 8+r*c*8 {
		return nil, fmt.Errorf("matrix blob is %d bytes, want %d for %dx%d", len(b), 8+r*c*8, r, c)
	}
	data := make([]float64, r*c)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8+i*8:]))
	}
	return mat.NewDense(r, c, data), nil
}

func encodeVector(v *mat.VecDense) []byte {
	m := mat.NewDense(v.Len(), 1, nil)
	for i := 0; i < v.Len(); i++ {
		m.Set(i, 0, v.AtVec(i))
	}
	return encodeMatrix(m)
}

func decodeVector(b []byte) (*mat.VecDense, error) {
	m, err := decodeMatrix(b)
	if err != nil {
		return nil, err
	}
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion blob-encoding
