package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by operations that address a row by ID when the
// row does not exist. Plain lookups return nil, nil instead.
var ErrNotFound = errors.New("not found")

// Dialect identifies the SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// TimeFormat is the fixed-width UTC layout used for every stored timestamp,
// so lexical order equals chronological order on both backends.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// DateFormat is used for calendar dates (course start, deadlines).
const DateFormat = "2006-01-02"

// DB wraps a database connection and its dialect.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	path    string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	return OpenDialect(SQLite, dbPath)
}

// OpenDialect opens a database for the given dialect and brings the schema
// up to date. For SQLite dsn is a file path; for Postgres a connection URL.
func OpenDialect(d Dialect, dsn string) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch d {
	case SQLite, "":
		d = SQLite
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// Pragmas in the DSN apply to every pooled connection.
		q := url.Values{}
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		conn, err = sql.Open("sqlite", "file:"+dsn+"?"+q.Encode())
	case Postgres:
		if dsn == "" {
			return nil, errors.New("postgres DSN is empty")
		}
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", d)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &DB{conn: conn, dialect: d, path: dsn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path or DSN.
func (db *DB) Path() string {
	return db.path
}

// Dialect returns the SQL backend in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(rebind(db.dialect, query), args...)
}

func (db *DB) query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(rebind(db.dialect, query), args...)
}

func (db *DB) queryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(rebind(db.dialect, query), args...)
}

// tx is a transaction that rebinds placeholders like DB does.
type tx struct {
	*sql.Tx
	dialect Dialect
}

func (t *tx) exec(query string, args ...any) (sql.Result, error) {
	return t.Exec(rebind(t.dialect, query), args...)
}

func (t *tx) queryRow(query string, args ...any) *sql.Row {
	return t.QueryRow(rebind(t.dialect, query), args...)
}

func (db *DB) withTx(fn func(t *tx) error) error {
	sqlTx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&tx{Tx: sqlTx, dialect: db.dialect}); err != nil {
		sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres. Question marks
// inside single-quoted literals are left alone.
func rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newID() string {
	return ulid.Make().String()
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateFormat)
	return &s
}

func parseDatePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(DateFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullInt(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}
