package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("load postgres: %v", err)
	}
	if len(pg) == 0 || !strings.Contains(pg[0].sql, "CREATE TABLE IF NOT EXISTS sales") {
		t.Errorf("postgres migrations missing sales table: %+v", pg)
	}

	ch, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("load clickhouse: %v", err)
	}
	for _, m := range ch {
		if err := validateNoSemicolonInStrings(m.sql); err != nil {
			t.Errorf("%s: %v", m.name, err)
		}
		if len(splitStatements(m.sql)) == 0 {
			t.Errorf("%s: no statements", m.name)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- comment; with semicolon
CREATE TABLE a (x Int8);

CREATE TABLE b (y String);
`
	stmts := splitStatements(sql)
	if len(stmts) != 2 {
		t.Fatalf("statements: got %d, want 2: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("second statement: %q", stmts[1])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"); err != nil {
		t.Errorf("valid sql rejected: %v", err)
	}
	if err := validateNoSemicolonInStrings("SELECT 'a;b'"); err == nil {
		t.Error("expected error for semicolon in literal")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/presale")
	if err != nil || db != "presale" {
		t.Errorf("got %q (%v), want presale", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}
