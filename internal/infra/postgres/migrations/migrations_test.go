package migrations

import (
	"testing"
)

func TestMigrationsAreDiscovered(t *testing.T) {
	sorted := Migrations.Sorted()
	want := []string{"20241122010000", "20241122020000", "20241122030000"}
	if len(sorted) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(sorted))
	}
	for i, name := range want {
		if sorted[i].Name != name {
			t.Fatalf("migration %d: expected %s, got %s", i, name, sorted[i].Name)
		}
	}
	for _, m := range sorted {
		if m.Up == nil || m.Down == nil {
			t.Fatalf("migration %s is missing a direction", m.Name)
		}
	}
}
