package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakakowasake/favthing/internal/app"
	"github.com/wakakowasake/favthing/internal/secrets"
)

func clearSecretEnv(t *testing.T) {
	t.Helper()
	for _, name := range secrets.Names() {
		t.Setenv(name, "")
		t.Setenv("VITE_"+name, "")
	}
	t.Setenv("REDIS_URL", "")
	t.Setenv("SECRETS_FILE", "")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	cfg := flags{addr: ":9999", logLevel: "DEBUG", logFormat: "json"}.apply(app.Config{HTTPAddr: ":8080", LogLevel: "info", LogFormat: "text"})
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	unchanged := flags{}.apply(app.Config{HTTPAddr: ":8080"})
	assert.Equal(t, ":8080", unchanged.HTTPAddr)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSecretStoreFilePrecedesEnvironment(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv(secrets.TMDBAPIKey, "from-env")
	t.Setenv(secrets.KMDBAPIKey, "env-kmdb")

	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("TMDB_API_KEY: from-file\n"), 0o600))

	store, err := buildSecretStore(app.Config{SecretsFile: path}, nil)
	require.NoError(t, err)

	value, err := store.Get(context.Background(), secrets.TMDBAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)

	value, err = store.Get(context.Background(), secrets.KMDBAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "env-kmdb", value)
}

func TestSecretStoreMissingFileFails(t *testing.T) {
	_, err := buildSecretStore(app.Config{SecretsFile: filepath.Join(t.TempDir(), "absent.yaml")}, nil)
	require.Error(t, err)
}

func TestSecretsCommandPrintsStatusOnly(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv(secrets.LastFMAPIKey, "very-secret-value")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"secrets"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.NotContains(t, text, "very-secret-value")
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 2)
		want := "missing"
		if fields[0] == secrets.LastFMAPIKey {
			want = "configured"
		}
		assert.Equal(t, want, fields[1], fields[0])
	}
}

func TestSecretsSetRejectsUnknownName(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"secrets", "set", "AWS_SECRET", "x"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown secret")
}

func TestSecretsSetNeedsRedis(t *testing.T) {
	clearSecretEnv(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"secrets", "set", "kmdb_api_key", "x"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}
