package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "storefront.sqlite", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, SessionStoreRedis, cfg.Auth.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.Users.InactiveTTL)
	assert.Equal(t, "0 * * * *", cfg.Users.PurgeSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,,")
	t.Setenv("SESSION_STORE", "MEMORY")
	t.Setenv("TOKEN_TTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, SessionStoreMemory, cfg.Auth.SessionStore)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{
			name: "missing session secret",
			env:  map[string]string{"SESSION_SECRET": "", "JWT_SECRET": "x"},
			want: ErrMissingSessionSecret,
		},
		{
			name: "missing jwt secret",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": ""},
			want: ErrMissingJWTSecret,
		},
		{
			name: "bad duration",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "SESSION_TTL": "soon"},
		},
		{
			name: "negative duration",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "TOKEN_TTL": "-1h"},
		},
		{
			name: "unknown session store",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "SESSION_STORE": "mongo"},
		},
		{
			name: "origin without scheme",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "CORS_ORIGINS": "shop.test"},
			want: ErrInvalidCORSOrigins,
		},
		{
			name: "only commas",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "CORS_ORIGINS": ", ,,"},
			want: ErrInvalidCORSOrigins,
		},
		{
			name: "unsupported scheme",
			env:  map[string]string{"SESSION_SECRET": "x", "JWT_SECRET": "x", "CORS_ORIGINS": "http://a.test,ftp://b.test"},
			want: ErrInvalidCORSOrigins,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLoad_WildcardOrigin(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("CORS_ORIGINS", "*")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadRoutePolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	doc := `
routes:
  products.create:
    strategy: jwt
    roles: [admin]
  products.list:
    strategy: current
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	policies, err := LoadRoutePolicies(path)
	require.NoError(t, err)

	require.Len(t, policies, 2)
	assert.Equal(t, RoutePolicy{Strategy: "jwt", Roles: []string{"admin"}}, policies["products.create"])
	assert.Equal(t, "current", policies["products.list"].Strategy)
	assert.Empty(t, policies["products.list"].Roles)
}

func TestLoadRoutePolicies_EmptyPath(t *testing.T) {
	policies, err := LoadRoutePolicies("")
	require.NoError(t, err)
	assert.Nil(t, policies)
}

func TestParseRoutePolicies_Invalid(t *testing.T) {
	_, err := ParseRoutePolicies([]byte("routes: [not, a, map]"))
	require.Error(t, err)
}
