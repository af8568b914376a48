package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
apiPort: 9090
database:
  type: postgres
  host: db.internal
  port: "5432"
  name: fraudlens
  user: fraudlens
  password: secret
auth:
  jwtSecret: file-secret
  sessionDuration: 12h
stripe:
  secretKey: sk_test_123
  webhookSecret: whsec_123
archive:
  enabled: true
  bucket: fraudlens-audit
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "12h", cfg.Auth.SessionDuration)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "fraudlens-audit", cfg.Archive.Bucket)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "apiPort: 0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.APIPort)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "/data/fraudlens.db", cfg.Database.Path)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "24h", cfg.Auth.SessionDuration)
}

func TestLoadConfigSecretsFromEnv(t *testing.T) {
	t.Setenv("FRAUDLENS_JWT_SECRET", "env-secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")

	path := writeConfigFile(t, "apiPort: 8081\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "sk_env", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Type = "sqlite"
	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "secret"
	cfg.Database.Type = "mysql"
	assert.Error(t, cfg.Validate())

	cfg.Database.Type = "postgres"
	assert.Error(t, cfg.Validate(), "postgres requires a host")

	cfg.Database.Host = "localhost"
	assert.NoError(t, cfg.Validate())
}
