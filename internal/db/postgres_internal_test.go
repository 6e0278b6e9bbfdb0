package db

import "testing"

func TestMigrationURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://u:p@localhost:5432/ledger?sslmode=disable", "pgx5://u:p@localhost:5432/ledger?sslmode=disable"},
		{"postgresql://u@db/ledger", "pgx5://u@db/ledger"},
		{"pgx5://u@db/ledger", "pgx5://u@db/ledger"},
	}
	for _, tt := range tests {
		if got := migrationURL(tt.in); got != tt.want {
			t.Errorf("migrationURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
