package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := `
# comment line
DHAN_CLIENT_ID=abc123
export JWT_SECRET="quoted secret"
TELEGRAM_CHAT_ID='single'
EMPTY_VALUE=
NOT_A_PAIR
=no-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("JWT_SECRET", "from-process")
	os.Unsetenv("DHAN_CLIENT_ID")
	os.Unsetenv("TELEGRAM_CHAT_ID")
	t.Cleanup(func() {
		os.Unsetenv("DHAN_CLIENT_ID")
		os.Unsetenv("TELEGRAM_CHAT_ID")
		os.Unsetenv("EMPTY_VALUE")
	})

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "abc123", os.Getenv("DHAN_CLIENT_ID"))
	assert.Equal(t, "from-process", os.Getenv("JWT_SECRET"), "process environment wins")
	assert.Equal(t, "single", os.Getenv("TELEGRAM_CHAT_ID"), "quotes stripped")
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line      string
		key, val  string
		wantOK    bool
	}{
		{"KEY=value", "KEY", "value", true},
		{"  KEY = value ", "KEY", "value", true},
		{`KEY="a b"`, "KEY", "a b", true},
		{"export KEY=v", "KEY", "v", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"no-equals", "", "", false},
		{"=value", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseEnvLine(tc.line)
		assert.Equal(t, tc.wantOK, ok, tc.line)
		if tc.wantOK {
			assert.Equal(t, tc.key, key, tc.line)
			assert.Equal(t, tc.val, val, tc.line)
		}
	}
}
