package store

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrations_Paired(t *testing.T) {
	ups, err := fs.Glob(Migrations, MigrationsDir+"/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("expected at least one up migration")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(Migrations, down); err != nil {
			t.Fatalf("missing down migration for %s", up)
		}
	}
}
