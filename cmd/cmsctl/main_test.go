package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig 写入使用临时 SQLite 文件的配置。
func testConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("database:\n  driver: sqlite\nsqlite:\n  path: %s\n%s", filepath.Join(dir, "cms.db"), extra)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func runCLI(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootHasCommands(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	for _, path := range [][]string{{"user", "create"}, {"user", "ls"}, {"role", "grant"}, {"seed"}, {"visits", "prune"}, {"mfa", "seal-secrets"}} {
		_, _, err := cmd.Find(path)
		require.NoErrorf(t, err, "expected command %v", path)
	}
}

func TestUserAndRoleCommands(t *testing.T) {
	cfg := testConfig(t, "")

	out, err := runCLI(t, cfg, "", "user", "create", "--email", "Editor@Example.com", "--password", "s3cretpass", "--role", "editor")
	require.NoError(t, err)
	require.Contains(t, out, "email=editor@example.com roles=editor")

	_, err = runCLI(t, cfg, "", "user", "create", "--email", "x@example.com", "--password", "s3cretpass", "--role", "owner")
	require.ErrorContains(t, err, `unknown role "owner"`)

	out, err = runCLI(t, cfg, "", "role", "grant", "editor@example.com", "admin")
	require.NoError(t, err)
	require.Contains(t, out, "grant editor@example.com: admin")

	out, err = runCLI(t, cfg, "", "role", "ls", "editor@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "admin")
	require.Contains(t, out, "editor")

	_, err = runCLI(t, cfg, "", "role", "revoke", "editor@example.com", "admin")
	require.NoError(t, err)
	out, err = runCLI(t, cfg, "", "user", "ls")
	require.NoError(t, err)
	require.Contains(t, out, "EMAIL")
	require.Contains(t, out, "editor@example.com")
	require.NotContains(t, out, "admin,")

	out, err = runCLI(t, cfg, "", "user", "passwd", "--email", "editor@example.com", "--password", "another-pass")
	require.NoError(t, err)
	require.Contains(t, out, "password updated")

	_, err = runCLI(t, cfg, "", "role", "grant", "nobody@example.com", "admin")
	require.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "")

	out, err := runCLI(t, cfg, "", "seed")
	require.NoError(t, err)
	require.Contains(t, out, "services: ")
	require.Contains(t, out, "rows inserted")
	require.Contains(t, out, "about: version")

	out, err = runCLI(t, cfg, "", "seed")
	require.NoError(t, err)
	require.Contains(t, out, "rows present, skipped")
	require.NotContains(t, out, "rows inserted")
	require.Contains(t, out, "about: ")
	require.Contains(t, out, "revisions present, skipped")
}

func TestVisitsPrune(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCLI(t, cfg, "", "visits", "prune", "--older-than", "24h")
	require.NoError(t, err)
	require.Contains(t, out, "deleted 0 visits older than 24h0m0s")
}

func TestSealSecrets(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := runCLI(t, cfg, "", "mfa", "seal-secrets")
	require.ErrorContains(t, err, "key_encryption_key")

	cfg = testConfig(t, "crypto:\n  key_encryption_key: test-kek\n")
	out, err := runCLI(t, cfg, "", "mfa", "seal-secrets", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "No plaintext secrets found.")
}
