package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelens/codekb/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CODEKB_HOST", "CODEKB_PORT", "CODEKB_DB_PATH", "CODEKB_LOG_LEVEL", "CODEKB_LOG_FORMAT",
		"CODEKB_CONFIG_FILE", "CODEKB_CODEHOST_BACKEND", "CODEKB_TASKQUEUE_BACKEND", "CODEKB_REDIS_ADDR",
		"CODEKB_LLM_BACKEND", "CODEKB_AUTH_ENABLED", "CODEKB_RATE_LIMIT_ENABLED", "CODEKB_TLS_ENABLED",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHost, cfg.Server.Host)
	assert.Equal(t, "github", cfg.CodeHost.Backend)
	assert.Equal(t, "memory", cfg.TaskQueue.Backend)
	assert.Equal(t, 12, cfg.Retrieval.MaxChunks)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEKB_PORT", "9090")
	t.Setenv("CODEKB_LOG_LEVEL", "debug")
	t.Setenv("CODEKB_CODEHOST_BACKEND", "local")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "local", cfg.CodeHost.Backend)
}

func TestValidate_RejectsInvalidPort(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 99999
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownBackends(t *testing.T) {
	cfg := config.Default()
	cfg.CodeHost.Backend = "bitbucket"
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.TaskQueue.Backend = "rabbitmq"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RedisBackendRequiresAddr(t *testing.T) {
	cfg := config.Default()
	cfg.TaskQueue.Backend = "redis"
	cfg.TaskQueue.RedisAddr = ""
	assert.Error(t, cfg.Validate())

	cfg.TaskQueue.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_AuthRequiresKeysWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Auth.PublicKey = "pub"
	cfg.Auth.PrivateKey = "priv"
	assert.NoError(t, cfg.Validate())
}
