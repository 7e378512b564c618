package tokenbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestRoundTrip(t *testing.T) {
	box, err := New(testKey)
	require.NoError(t, err)

	sealed, err := box.Encrypt("123456:ABCdefGHIjklMNOpqrSTUvwxYZ0123456789")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ABCdef")

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "123456:ABCdefGHIjklMNOpqrSTUvwxYZ0123456789", plain)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	box, err := New(testKey)
	require.NoError(t, err)
	a, err := box.Encrypt("same")
	require.NoError(t, err)
	b, err := box.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	box, err := New(testKey)
	require.NoError(t, err)

	for _, in := range []string{"", "not base64!", "c2hvcnQ=", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		_, err := box.Decrypt(in)
		assert.ErrorIs(t, err, ErrCiphertext, "input %q", in)
	}
}

func TestDecryptRejectsOtherKey(t *testing.T) {
	box, err := New(testKey)
	require.NoError(t, err)
	sealed, err := box.Encrypt("secret")
	require.NoError(t, err)

	other, err := New("ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA=")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrCiphertext)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New("c2hvcnQ=")
	require.Error(t, err)
}
