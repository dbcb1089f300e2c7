// dephealth_test.go — unit-тесты мониторинга зависимостей (без запуска проверок).
package service

import (
	"database/sql"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер "pgx" для sql.Open
	"github.com/prometheus/client_golang/prometheus"
)

// openLazyDB возвращает *sql.DB без установки соединения.
func openLazyDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", "postgres://archive@127.0.0.1:5432/archives")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dephealthTestParams(db *sql.DB, jwksURL string) DephealthParams {
	return DephealthParams{
		ServiceID:     "archive-db",
		Group:         "archive-db-test",
		DB:            db,
		PostgresURL:   "postgres://archive@127.0.0.1:5432/archives",
		JWKSURL:       jwksURL,
		CheckInterval: 15 * time.Second,
	}
}

func TestNewDephealthService_NilDB(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ds, err := NewDephealthServiceWithRegisterer(dephealthTestParams(nil, ""), logger, prometheus.NewRegistry())
	if err == nil {
		t.Fatal("ожидалась ошибка для nil DB")
	}
	if ds != nil {
		t.Errorf("при ошибке сервис должен быть nil, получен %+v", ds)
	}
}

func TestNewDephealthService_Dependencies(t *testing.T) {
	tests := []struct {
		name     string
		jwksURL  string
		wantDeps []string
	}{
		{"только PostgreSQL", "", []string{"postgresql"}},
		{"PostgreSQL и JWKS", "https://idp.example.org:8443/realms/archive/protocol/openid-connect/certs", []string{"postgresql", "jwks"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			ds, err := NewDephealthServiceWithRegisterer(
				dephealthTestParams(openLazyDB(t), tt.jwksURL), logger, prometheus.NewRegistry(),
			)
			if err != nil {
				t.Fatalf("NewDephealthServiceWithRegisterer: %v", err)
			}
			if !slices.Equal(ds.deps, tt.wantDeps) {
				t.Errorf("deps = %v, ожидалось %v", ds.deps, tt.wantDeps)
			}
		})
	}
}

func TestJWKSHealthPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"path из URL", "https://idp.example.org/realms/archive/protocol/openid-connect/certs", "/realms/archive/protocol/openid-connect/certs"},
		{"без path", "https://idp.example.org", "/health"},
		{"некорректный URL", "://bad", "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jwksHealthPath(tt.input); got != tt.expected {
				t.Errorf("jwksHealthPath(%q) = %q, ожидается %q", tt.input, got, tt.expected)
			}
		})
	}
}
