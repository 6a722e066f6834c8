package audit

import (
	"database/sql"
	"fmt"

	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
	_ "modernc.org/sqlite"
)

// SQLiteSink persists admission decisions to a dedicated SQLite database.
// The scheduler delivers entries best-effort from detached goroutines, so
// a slow disk never blocks a marketplace call.
type SQLiteSink struct {
	db *sql.DB
}

var _ repricer.AuditSink = (*SQLiteSink)(nil)

// NewSQLiteSink opens the audit database and creates the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate db: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS admission_log (
		id          TEXT PRIMARY KEY,
		endpoint    TEXT NOT NULL,
		priority    TEXT NOT NULL,
		admission   TEXT NOT NULL,
		http_status INTEGER,
		duration_ms INTEGER,
		error       TEXT,
		created_at  DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_admission_endpoint ON admission_log(endpoint)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_admission_created ON admission_log(created_at)`)
	return err
}

func (s *SQLiteSink) Record(e repricer.AuditEntry) error {
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO admission_log
		(id, endpoint, priority, admission, http_status, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Endpoint, e.Priority.String(), string(e.Admission),
		e.HTTPStatus, e.Duration.Milliseconds(), errText, e.Timestamp,
	)
	return err
}

// CountByAdmission returns how many recorded entries carry the given
// admission status. Used by operators to watch the rejected rate.
func (s *SQLiteSink) CountByAdmission(admission repricer.AdmissionStatus) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM admission_log WHERE admission = ?`,
		string(admission),
	).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
