package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func dbFlags(t *testing.T) []string {
	dir := t.TempDir()
	return []string{"--db", filepath.Join(dir, "marquee.db"), "--pepper", filepath.Join(dir, "pepper")}
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "", "keygen", "--id", "s2")
	require.NoError(t, err)

	id, b64, ok := strings.Cut(strings.TrimSpace(out), "=")
	require.True(t, ok)
	require.Equal(t, "s2", id)
	key, err := base64.RawURLEncoding.DecodeString(b64)
	require.NoError(t, err)
	require.Len(t, key, 32)

	_, err = run(t, "", "keygen")
	require.Error(t, err)

	_, err = run(t, "", "keygen", "--id", "s3", "--bytes", "16")
	require.Error(t, err)
}

func TestHash(t *testing.T) {
	flags := dbFlags(t)
	out, err := run(t, "hunter22hunter\n", append(flags, "hash")...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "$scrypt$"), out)

	_, err = run(t, "\n", append(flags, "hash")...)
	require.Error(t, err)
}

func TestAccountLifecycle(t *testing.T) {
	flags := dbFlags(t)

	out, err := run(t, "", append(flags, "account", "create", "alice", "--admin", "--email", "alice@example.com")...)
	require.NoError(t, err)
	require.Contains(t, out, "created alice")
	require.Contains(t, out, "admin")
	require.Contains(t, out, "password: ")

	_, err = run(t, "", append(flags, "account", "create", "bob", "--password", "correct-horse")...)
	require.NoError(t, err)

	_, err = run(t, "", append(flags, "account", "create", "bob", "--password", "correct-horse")...)
	require.Error(t, err)

	out, err = run(t, "", append(flags, "-o", "json", "account", "list")...)
	require.NoError(t, err)
	var accounts []accountView
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	require.Len(t, accounts, 2)

	_, err = run(t, "", append(flags, "account", "ban", "bob")...)
	require.NoError(t, err)

	out, err = run(t, "", append(flags, "-o", "json", "account", "list")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	for _, a := range accounts {
		require.Equal(t, a.Username == "bob", a.Banned, a.Username)
	}

	_, err = run(t, "", append(flags, "account", "unban", "bob")...)
	require.NoError(t, err)

	out, err = run(t, "", append(flags, "sessions", "revoke", "bob")...)
	require.NoError(t, err)
	require.Contains(t, out, "revoked 0 session(s) of bob")

	_, err = run(t, "", append(flags, "account", "ban", "nobody")...)
	require.Error(t, err)

	out, err = run(t, "", append(flags, "account", "delete", "bob")...)
	require.NoError(t, err)
	require.Contains(t, out, "deleted bob")
	_, err = run(t, "", append(flags, "account", "delete", "bob")...)
	require.Error(t, err)
}

func TestAccountListTable(t *testing.T) {
	flags := dbFlags(t)
	out, err := run(t, "", append(flags, "account", "list")...)
	require.NoError(t, err)
	require.Contains(t, out, "No accounts found.")

	_, err = run(t, "", append(flags, "account", "create", "carol", "--password", "correct-horse")...)
	require.NoError(t, err)

	out, err = run(t, "", append(flags, "account", "list")...)
	require.NoError(t, err)
	require.Contains(t, out, "USERNAME")
	require.Contains(t, out, "carol")
}
