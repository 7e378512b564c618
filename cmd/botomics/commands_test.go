package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TolesaD/botomics/core/tokenbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey   = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	testToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawX"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &out
	err := a.Run(append([]string{"botomics"}, args...))
	return out.String(), err
}

func TestEncryptToken(t *testing.T) {
	out, err := run(t, "encrypt-token", "--key", testKey, testToken)
	require.NoError(t, err)

	box, err := tokenbox.New(testKey)
	require.NoError(t, err)
	plain, err := box.Decrypt(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, testToken, plain)
}

func TestEncryptTokenRejectsBadInput(t *testing.T) {
	_, err := run(t, "encrypt-token", "--key", testKey)
	assert.ErrorContains(t, err, "token argument is required")

	_, err = run(t, "encrypt-token", "--key", testKey, "not-a-token")
	assert.ErrorContains(t, err, "not a Bot API token")

	_, err = run(t, "encrypt-token", "--key", "c2hvcnQ=", testToken)
	assert.ErrorContains(t, err, "key must be 32 bytes")
}

func TestCheckFlow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flows:
  - name: survey
    steps:
      - type: trigger
        command: /survey
      - type: ask_question
        question: Your name?
        variable: name
`), 0o600))

	out, err := run(t, "check-flow", path)
	require.NoError(t, err)
	assert.Equal(t, "survey\ttrigger=/survey\tsteps=2\n", out)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"flows": []}`), 0o600))
	_, err = run(t, "check-flow", empty)
	assert.ErrorContains(t, err, "no flows defined")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev (local)\n", out)
}
