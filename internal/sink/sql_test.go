package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	palserrors "github.com/MerlinMa/pals/internal/errors"
	"github.com/MerlinMa/pals/pkg/types"
)

func openTestSQLSink(t *testing.T) *SQLSink {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "pals.db")
	s, err := OpenSQLSink(context.Background(), "sqlite3", dsn, "results", nil)
	if err != nil {
		t.Fatalf("OpenSQLSink failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLSink_Upload(t *testing.T) {
	s := openTestSQLSink(t)
	ctx := context.Background()

	if err := s.Upload(ctx, Destination{}, sampleTable(t)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	// A second upload appends to the existing table.
	if err := s.Upload(ctx, Destination{}, sampleTable(t)); err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "results"`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}

	var (
		ts       string
		flow     sql.NullFloat64
		pressure float64
	)
	row := s.DB().QueryRowContext(ctx, `SELECT "Timestamps", "Flow", "Pressure" FROM "results" ORDER BY rowid LIMIT 1 OFFSET 1`)
	if err := row.Scan(&ts, &flow, &pressure); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if ts != "2021-01-01T00:00:10Z" || flow.Valid || pressure != 20 {
		t.Errorf("row = (%s, %v, %v)", ts, flow, pressure)
	}
}

func TestSQLSink_UploadBatchesWideTables(t *testing.T) {
	s := openTestSQLSink(t)
	ctx := context.Background()

	index := make([]time.Time, 300)
	for i := range index {
		index[i] = time.Unix(int64(i*60), 0).UTC()
	}
	tbl := types.NewTable(index)
	for c := 0; c < 10; c++ {
		values := make([]float64, len(index))
		for i := range values {
			values[i] = float64(c*1000 + i)
		}
		if err := tbl.AddColumn(fmt.Sprintf("tag %d", c), values); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Upload(ctx, Destination{Name: "wide"}, tbl); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	var sum float64
	if err := s.DB().QueryRowContext(ctx, `SELECT SUM("tag 9") FROM "wide"`).Scan(&sum); err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	// 300*9000 + 0+1+...+299
	if sum != 300*9000+299*300/2 {
		t.Errorf("sum = %v", sum)
	}
}

func TestSQLSink_Exec(t *testing.T) {
	s := openTestSQLSink(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, `CREATE TABLE notes (msg TEXT)`); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	res, err := s.Exec(ctx, `INSERT INTO notes (msg) VALUES (?)`, "ok")
	if err != nil {
		t.Fatalf("Exec insert failed: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("rows affected = %d", n)
	}

	if _, err := s.Exec(ctx, `INSERT INTO missing VALUES (1)`); !errors.Is(err, palserrors.ErrUpload) {
		t.Errorf("got %v, want UploadError", err)
	}
}

func TestSQLSink_RequiresTableName(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "pals.db")
	s, err := OpenSQLSink(context.Background(), "", dsn, "", nil)
	if err != nil {
		t.Fatalf("OpenSQLSink failed: %v", err)
	}
	defer s.Close()

	if err := s.Upload(context.Background(), Destination{}, sampleTable(t)); !errors.Is(err, palserrors.ErrNullInput) {
		t.Errorf("got %v, want NullInput", err)
	}
}

func TestCreateTableSQL_QuotesIdentifiers(t *testing.T) {
	got := createTableSQL(`my"table`, []string{"Flow Rate"})
	want := `CREATE TABLE IF NOT EXISTS "my""table" ("Timestamps" TEXT NOT NULL, "Flow Rate" REAL)`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}
