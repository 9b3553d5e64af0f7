package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt_secret: s3cret
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "finserv-applications", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10000, cfg.Server.RequestTimeout)
	assert.Equal(t, 2000, cfg.Aggregation.EntryTimeout)
	assert.Equal(t, 4, cfg.Aggregation.MaxParallel)
	assert.Equal(t, 0, cfg.Aggregation.CacheTTL)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PG_HOST", "db.internal")
	t.Setenv("TEST_PG_PASSWORD", "pw")
	path := writeConfig(t, `
database:
  driver: postgres
  postgres:
    host: ${TEST_PG_HOST}
    database: finserv
    user: app
    password: ${TEST_PG_PASSWORD}
auth:
  jwt_secret: s3cret
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "host=db.internal port=5432 user=app password=pw dbname=finserv sslmode=disable", cfg.Database.Postgres.GetDSN())
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_USER", "svc")
	path := writeConfig(t, `
server:
  address: ":8080"
database:
  driver: postgres
  postgres:
    host: localhost
    database: finserv
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "svc", cfg.Database.Postgres.User)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "")
	t.Setenv("UNSET_PG_HOST", "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing secret",
			body: "database:\n  driver: memory\n",
			want: "auth.jwt_secret is required",
		},
		{
			name: "unknown driver",
			body: "database:\n  driver: mongo\nauth:\n  jwt_secret: x\n",
			want: "database.driver",
		},
		{
			name: "postgres without host",
			body: "database:\n  driver: postgres\n  postgres:\n    host: ${UNSET_PG_HOST}\n    database: d\n    user: u\nauth:\n  jwt_secret: x\n",
			want: "database.postgres.host is required",
		},
		{
			name: "postgres without user",
			body: "database:\n  driver: postgres\n  postgres:\n    host: h\n    database: d\nauth:\n  jwt_secret: x\n",
			want: "database.postgres.user is required",
		},
		{
			name: "negative cache ttl",
			body: "database:\n  driver: memory\naggregation:\n  cache_ttl: -1\nauth:\n  jwt_secret: x\n",
			want: "must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
