package dbopen

import (
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemoryAppliesPragmas(t *testing.T) {
	// WHAT: OpenMemory yields a usable database with foreign keys enforced.
	// WHY: The snapshot/event cascade relies on PRAGMA foreign_keys = ON.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma query: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}
}

func TestWithSchema(t *testing.T) {
	// WHAT: WithSchema executes DDL at open time.
	// WHY: main opens the database and applies the store schema in one call.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO things (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestWithoutForeignKeys(t *testing.T) {
	// WHAT: WithoutForeignKeys disables the pragma.
	// WHY: Option must actually take effect, not just parse.
	db := OpenMemory(t, WithoutForeignKeys())

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma query: %v", err)
	}
	if fk != 0 {
		t.Errorf("foreign_keys: got %d, want 0", fk)
	}
}

func TestOpenBadDriver(t *testing.T) {
	// WHAT: Open with an unregistered driver fails cleanly.
	// WHY: Misconfiguration should surface at startup, not first query.
	if _, err := Open(":memory:", WithDriver("no-such-driver")); err == nil {
		t.Error("expected error for unregistered driver")
	}
}
