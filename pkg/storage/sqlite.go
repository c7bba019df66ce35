package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/causewaylabs/causeway/pkg/config"
	"github.com/causewaylabs/causeway/pkg/domain"
)

// SQLiteStore persists the analysis state in a single local database
// file. Records are stored as JSON documents with indexed columns for
// the query paths; the pure-Go driver keeps the binary CGO-free.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and migrates) the database at cfg.SQLitePath
func NewSQLiteStore(cfg config.StorageConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Single writer: SQLite serializes writes anyway, and one
	// connection avoids SQLITE_BUSY under concurrent appends
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}

	logger.Info("SQLite store opened", zap.String("path", cfg.SQLitePath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

	CREATE TABLE IF NOT EXISTS event_entities (
		event_id TEXT NOT NULL,
		entity_key TEXT NOT NULL,
		PRIMARY KEY (event_id, entity_key)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_key ON event_entities(entity_key);

	CREATE TABLE IF NOT EXISTS correlations (
		id TEXT PRIMARY KEY,
		primary_event_id TEXT NOT NULL,
		secondary_event_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_corr_primary ON correlations(primary_event_id);
	CREATE INDEX IF NOT EXISTS idx_corr_secondary ON correlations(secondary_event_id);
	CREATE INDEX IF NOT EXISTS idx_corr_created ON correlations(created_at);

	CREATE TABLE IF NOT EXISTS analyses (
		analysis_id TEXT PRIMARY KEY,
		subject_event_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_subject ON analyses(subject_event_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		root_cause_id TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recs_root_cause ON recommendations(root_cause_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, evt *domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", evt.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, type, timestamp, payload) VALUES (?, ?, ?, ?)`,
		evt.ID, string(evt.Type), evt.Timestamp.UnixNano(), string(payload)); err != nil {
		return err
	}
	for _, ref := range evt.Entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_entities (event_id, entity_key) VALUES (?, ?)`,
			evt.ID, ref.Key()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) EventByID(ctx context.Context, id string) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE id = ?`, id)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return unmarshalEvent(payload)
}

func (s *SQLiteStore) EventsByEntity(ctx context.Context, ref domain.EntityRef, from, to time.Time) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.payload FROM events e
		JOIN event_entities ee ON ee.event_id = e.id
		WHERE ee.entity_key = ? AND e.timestamp >= ? AND e.timestamp <= ?
		ORDER BY e.timestamp`,
		ref.Key(), rangeBound(from, false), rangeBound(to, true))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) EventsInRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp`,
		rangeBound(from, false), rangeBound(to, true))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) AppendCorrelation(ctx context.Context, c *domain.Correlation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling correlation %s: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO correlations (id, primary_event_id, secondary_event_id, created_at, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PrimaryEventID, c.SecondaryEventID, c.CreatedAt.UnixNano(), string(payload))
	return err
}

func (s *SQLiteStore) CorrelationsForEvent(ctx context.Context, eventID string) ([]*domain.Correlation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM correlations
		WHERE primary_event_id = ? OR secondary_event_id = ?
		ORDER BY created_at`, eventID, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCorrelations(rows)
}

func (s *SQLiteStore) CorrelationsInRange(ctx context.Context, from, to time.Time) ([]*domain.Correlation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM correlations
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at`,
		rangeBound(from, false), rangeBound(to, true))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCorrelations(rows)
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, rc *domain.RootCause) error {
	payload, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshaling analysis %s: %w", rc.AnalysisID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (analysis_id, subject_event_id, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET payload = excluded.payload`,
		rc.AnalysisID, rc.SubjectEventID, rc.CreatedAt.UnixNano(), string(payload))
	return err
}

func (s *SQLiteStore) AnalysisByID(ctx context.Context, analysisID string) (*domain.RootCause, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analyses WHERE analysis_id = ?`, analysisID)
	return scanAnalysis(row, "analysis", analysisID)
}

func (s *SQLiteStore) AnalysisForEvent(ctx context.Context, subjectEventID string) (*domain.RootCause, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM analyses WHERE subject_event_id = ?
		ORDER BY created_at DESC LIMIT 1`, subjectEventID)
	return scanAnalysis(row, "analysis for event", subjectEventID)
}

func (s *SQLiteStore) AnalysesInRange(ctx context.Context, from, to time.Time) ([]*domain.RootCause, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM analyses
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at`,
		rangeBound(from, false), rangeBound(to, true))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RootCause
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rc domain.RootCause
		if err := json.Unmarshal([]byte(payload), &rc); err != nil {
			return nil, err
		}
		out = append(out, &rc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendRecommendations(ctx context.Context, recs []*domain.Recommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling recommendation %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO recommendations (id, root_cause_id, payload) VALUES (?, ?, ?)`,
			rec.ID, rec.RootCauseID, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecommendationsForAnalysis(ctx context.Context, analysisID string) ([]*domain.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM recommendations WHERE root_cause_id = ?`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Recommendation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec domain.Recommendation
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

// rangeBound converts an optional time bound to nanoseconds; zero
// times open the bound
func rangeBound(t time.Time, upper bool) int64 {
	if t.IsZero() {
		if upper {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return t.UnixNano()
}

func unmarshalEvent(payload string) (*domain.Event, error) {
	var evt domain.Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var out []*domain.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		evt, err := unmarshalEvent(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func scanCorrelations(rows *sql.Rows) ([]*domain.Correlation, error) {
	var out []*domain.Correlation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var c domain.Correlation
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanAnalysis(row *sql.Row, kind, key string) (*domain.RootCause, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Kind: kind, Key: key}
		}
		return nil, err
	}
	var rc domain.RootCause
	if err := json.Unmarshal([]byte(payload), &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}
