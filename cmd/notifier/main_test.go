package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/auth"
)

const testSecret = "cli-test-secret"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "listen", "token", "emit"})
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("NOTIFIER_AUTH_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "--username", "amani", "--student-id", "42", "--ttl", "1m")
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)
	claims, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "amani", claims.Username)
	assert.True(t, claims.IsStudent)
	assert.Equal(t, int64(42), claims.StudentID)
	assert.Equal(t, "student:42", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Minute), time.Unix(claims.ExpiresAt, 0), 5*time.Second)
}

func TestTokenCommand_Save(t *testing.T) {
	t.Setenv("NOTIFIER_AUTH_JWT_SECRET", testSecret)
	path := filepath.Join(t.TempDir(), "token")

	out, err := execute(t, "token", "--admin", "--save", path)
	require.NoError(t, err)
	assert.Contains(t, out, "token saved to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	claims, err := auth.Decode(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("NOTIFIER_AUTH_JWT_SECRET", "")

	_, err := execute(t, "token")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}

func TestServeCommand_RequiresSecret(t *testing.T) {
	t.Setenv("NOTIFIER_AUTH_JWT_SECRET", "")

	_, err := execute(t, "serve")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestEmitCommand_RequiresBrokers(t *testing.T) {
	_, err := execute(t, "emit", "--type", "student.registered", "--action", "created")
	assert.ErrorContains(t, err, "brokers")

	_, err = execute(t, "emit", "--type", "x", "--payload", "{nope")
	assert.ErrorContains(t, err, "invalid --payload")
}

func TestLoad_RejectsBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0o600))

	_, err := execute(t, "--config", path, "token")
	assert.ErrorContains(t, err, "invalid configuration")
}
