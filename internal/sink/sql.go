package sink

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/normalize"
	"github.com/MerlinMa/pals/pkg/types"
)

// maxSQLVariables bounds placeholders per INSERT statement.
const maxSQLVariables = 900

// SQLSink writes tables into a SQL database, one row per timestamp.
type SQLSink struct {
	db    *sql.DB
	table string
	log   logging.Logger
}

// OpenSQLSink opens driver/dsn and verifies the connection. table is the
// default target when a Destination carries no name.
func OpenSQLSink(ctx context.Context, driver, dsn, table string, log logging.Logger) (*SQLSink, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLSink(db, table, log), nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, table string, log logging.Logger) *SQLSink {
	if log == nil {
		log = logging.Nop()
	}
	return &SQLSink{db: db, table: table, log: log}
}

// Upload creates the target table when missing and inserts every row of t
// in a single transaction.
func (s *SQLSink) Upload(ctx context.Context, dest Destination, t *types.Table) error {
	if t == nil {
		return palserrors.NewValidationError(palserrors.CodeNullInput, "table cannot be nil")
	}
	target := dest.Name
	if target == "" {
		target = s.table
	}
	if target == "" {
		return palserrors.NewValidationError(palserrors.CodeNullInput, "sql table name cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return palserrors.NewUploadError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(target, t.Names())); err != nil {
		return palserrors.NewUploadError(fmt.Sprintf("create table %s", target), err)
	}

	columns := make([]string, 0, t.Width()+1)
	columns = append(columns, quoteIdent(normalize.IndexLabel))
	for _, name := range t.Names() {
		columns = append(columns, quoteIdent(name))
	}

	batch := maxSQLVariables / len(columns)
	if batch < 1 {
		batch = 1
	}
	for start := 0; start < t.Len(); start += batch {
		end := start + batch
		if end > t.Len() {
			end = t.Len()
		}

		insert := squirrel.Insert(quoteIdent(target)).Columns(columns...)
		for i := start; i < end; i++ {
			values := make([]interface{}, 0, len(columns))
			values = append(values, normalize.FormatTimestamp(t.Index[i]))
			for _, c := range t.Columns {
				values = append(values, sqlValue(c.Values[i]))
			}
			insert = insert.Values(values...)
		}

		query, args, err := insert.PlaceholderFormat(squirrel.Question).ToSql()
		if err != nil {
			return palserrors.NewUploadError("build insert", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return palserrors.NewUploadError(fmt.Sprintf("insert into %s", target), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return palserrors.NewUploadError("commit", err)
	}

	s.log.Debug("rows inserted", "table", target, "rows", t.Len())
	return nil
}

// Exec runs a statement outside of Upload and commits it.
func (s *SQLSink) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, palserrors.NewUploadError("exec", err)
	}
	return res, nil
}

// DB exposes the underlying handle.
func (s *SQLSink) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

func createTableSQL(table string, names []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (")
	b.WriteString(quoteIdent(normalize.IndexLabel))
	b.WriteString(" TEXT NOT NULL")
	for _, n := range names {
		b.WriteString(", ")
		b.WriteString(quoteIdent(n))
		b.WriteString(" REAL")
	}
	b.WriteString(")")
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
