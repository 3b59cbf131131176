package sessions

import "testing"

func TestLoadMigrations_DiscoversCoreSchemaWithUpAndDown(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for _, m := range migrations {
		if m.UpSQL == "" {
			t.Errorf("migration %s missing up.sql", m.ID)
		}
		if m.DownSQL == "" {
			t.Errorf("migration %s missing down.sql", m.ID)
		}
	}
}

func TestLoadMigrations_Sorted(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].ID >= migrations[i].ID {
			t.Fatalf("migrations not sorted: %s before %s", migrations[i-1].ID, migrations[i].ID)
		}
	}
}
