// Package store keeps measurement results in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/yigbench/yig/pkg/run"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no measurement has the requested id.
var ErrNotFound = errors.New("measurement not found")

// PersistenceError wraps a failed database operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Summary is a measurement without its data.
type Summary struct {
	ID          string          `json:"id"`
	MeasureType run.MeasureType `json:"measureType"`
	State       run.State       `json:"state"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Request     run.Measurement `json:"request"`
}

// Record is a stored measurement. Result is nil until the run has been
// saved.
type Record struct {
	Summary
	Result *run.MeasurementResult `json:"result,omitempty"`
}

// Store implements run.Store.
type Store struct {
	db *sql.DB
}

var _ run.Store = &Store{}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open "+path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, persistErr("configure "+path, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logrus.WithField("path", path).Debug("measurement store opened")
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return persistErr("load migrations", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return persistErr("create migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return persistErr("create migrator", err)
	}
	m.Log = migrateLogger{}

	// m is not closed: that would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return persistErr("migrate", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	var v uint
	err := s.db.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&v)
	return v, persistErr("read schema version", err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a measurement in Running state and returns its id.
func (s *Store) Create(ctx context.Context, measureType run.MeasureType, req run.Measurement) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", persistErr("marshal request", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO measurements (id, measure_type, state, created_at, request) VALUES (?, ?, ?, ?, ?)`,
		id, string(measureType), string(run.StateRunning), time.Now().UnixMilli(), string(b))
	if err != nil {
		return "", persistErr("create measurement", err)
	}
	return id, nil
}

// Save stores the final result of a measurement created with Create.
func (s *Store) Save(ctx context.Context, res *run.MeasurementResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return persistErr("marshal result", err)
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	r, err := s.db.ExecContext(ctx,
		`UPDATE measurements SET state = ?, finished_at = ?, data = ? WHERE id = ?`,
		string(res.State), finished.UnixMilli(), string(b), res.ID)
	if err != nil {
		return persistErr("save measurement", err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		return persistErr("save measurement "+res.ID, ErrNotFound)
	}
	return nil
}

// List returns the newest measurements first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, measure_type, state, created_at, finished_at, request FROM measurements ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("list measurements", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := scanSummary(rows, &sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, persistErr("list measurements", rows.Err())
}

// Get returns one measurement.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, measure_type, state, created_at, finished_at, request, data FROM measurements WHERE id = ?`, id)

	var rec Record
	var data sql.NullString
	if err := scanSummary(row, &rec.Summary, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if data.Valid && data.String != "" {
		rec.Result = &run.MeasurementResult{}
		if err := json.Unmarshal([]byte(data.String), rec.Result); err != nil {
			return nil, persistErr("decode measurement "+id, err)
		}
	}
	return &rec, nil
}

// Delete removes one measurement.
func (s *Store) Delete(ctx context.Context, id string) error {
	r, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete measurement", err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner, sum *Summary, extra ...any) error {
	var (
		measureType, state, req string
		created                 int64
		finished                sql.NullInt64
	)
	dest := append([]any{&sum.ID, &measureType, &state, &created, &finished, &req}, extra...)
	if err := sc.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return persistErr("scan measurement", err)
	}
	sum.MeasureType = run.MeasureType(measureType)
	sum.State = run.State(state)
	sum.CreatedAt = time.UnixMilli(created)
	if finished.Valid {
		sum.FinishedAt = time.UnixMilli(finished.Int64)
	}
	if err := json.Unmarshal([]byte(req), &sum.Request); err != nil {
		return persistErr("decode request", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logrus.Debugf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return logrus.IsLevelEnabled(logrus.TraceLevel)
}
