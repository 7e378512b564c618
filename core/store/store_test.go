package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TolesaD/botomics/core/tokenbox"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

type memBots struct {
	bots map[int64]Bot
}

func (m *memBots) ListActiveBots(context.Context) ([]Bot, error) {
	var out []Bot
	for _, b := range m.bots {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBots) GetBot(_ context.Context, id int64) (Bot, error) {
	b, ok := m.bots[id]
	if !ok {
		return Bot{}, fmt.Errorf("get bot: %w", ErrNotFound)
	}
	return b, nil
}

func (m *memBots) SetBotActive(_ context.Context, id int64, active bool) error {
	b, ok := m.bots[id]
	if !ok {
		return ErrNotFound
	}
	b.IsActive = active
	m.bots[id] = b
	return nil
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr("op", nil))
	assert.ErrorIs(t, mapErr("op", sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapErr("op", &pq.Error{Code: "23503"}), ErrBotMissing)

	err := mapErr("op", &pq.Error{Code: "42P01"})
	assert.NotErrorIs(t, err, ErrBotMissing)
	assert.Contains(t, err.Error(), "op: ")
}

func TestCredentialsDecrypt(t *testing.T) {
	box, err := tokenbox.New(testKey)
	require.NoError(t, err)
	sealed, err := box.Encrypt("1234567:abcdefghijklmnopqrstuvwxyz0123456789")
	require.NoError(t, err)

	creds := NewCredentials(&memBots{}, box)

	plain, err := creds.DecryptToken(Bot{ID: 1, EncryptedToken: sealed})
	require.NoError(t, err)
	assert.Equal(t, "1234567:abcdefghijklmnopqrstuvwxyz0123456789", plain)

	_, err = creds.DecryptToken(Bot{ID: 2})
	assert.ErrorIs(t, err, tokenbox.ErrCiphertext)

	_, err = creds.DecryptToken(Bot{ID: 3, EncryptedToken: "garbage"})
	assert.ErrorIs(t, err, tokenbox.ErrCiphertext)

	_, err = NewCredentials(&memBots{}, nil).DecryptToken(Bot{EncryptedToken: sealed})
	assert.ErrorIs(t, err, tokenbox.ErrCiphertext)
}

func TestCredentialsDelegates(t *testing.T) {
	src := &memBots{bots: map[int64]Bot{
		1: {ID: 1, IsActive: true},
		2: {ID: 2, IsActive: false},
	}}
	creds := NewCredentials(src, nil)
	ctx := context.Background()

	active, err := creds.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.EqualValues(t, 1, active[0].ID)

	require.NoError(t, creds.SetActive(ctx, 1, false))
	b, err := creds.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, b.IsActive)

	_, err = creds.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBotHelpers(t *testing.T) {
	var b Bot
	assert.False(t, b.HasFlow())
	_, ok := b.Welcome()
	assert.False(t, ok)

	b.CustomFlow = types.NullJSONText{JSONText: types.JSONText(`[{"type":"trigger"}]`), Valid: true}
	b.WelcomeMessage = sql.NullString{String: "hi", Valid: true}
	assert.True(t, b.HasFlow())
	w, ok := b.Welcome()
	assert.True(t, ok)
	assert.Equal(t, "hi", w)

	b.CustomFlow = types.NullJSONText{JSONText: types.JSONText("null"), Valid: true}
	assert.False(t, b.HasFlow())
}
