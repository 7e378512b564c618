package store

import (
	"context"
	"errors"

	"github.com/TolesaD/botomics/core/tokenbox"
)

// BotSource is the subset of Store the credential view reads and updates.
type BotSource interface {
	ListActiveBots(ctx context.Context) ([]Bot, error)
	GetBot(ctx context.Context, id int64) (Bot, error)
	SetBotActive(ctx context.Context, id int64, active bool) error
}

// Credentials is the credential store consumed by the connection pool:
// bot records plus token decryption.
type Credentials struct {
	bots BotSource
	box  *tokenbox.Box
}

// NewCredentials combines a bot source with the token box.
func NewCredentials(bots BotSource, box *tokenbox.Box) *Credentials {
	return &Credentials{bots: bots, box: box}
}

// ListActive returns every bot with the active flag set.
func (c *Credentials) ListActive(ctx context.Context) ([]Bot, error) {
	return c.bots.ListActiveBots(ctx)
}

// GetByID returns one bot record or ErrNotFound.
func (c *Credentials) GetByID(ctx context.Context, id int64) (Bot, error) {
	return c.bots.GetBot(ctx, id)
}

// SetActive flips the bot's active flag.
func (c *Credentials) SetActive(ctx context.Context, id int64, active bool) error {
	return c.bots.SetBotActive(ctx, id, active)
}

// DecryptToken opens the bot's stored token. Missing or corrupt ciphertext
// yields tokenbox.ErrCiphertext, never a panic.
func (c *Credentials) DecryptToken(b Bot) (string, error) {
	if c.box == nil || b.EncryptedToken == "" {
		return "", tokenbox.ErrCiphertext
	}
	plain, err := c.box.Decrypt(b.EncryptedToken)
	if err != nil {
		if errors.Is(err, tokenbox.ErrCiphertext) {
			return "", err
		}
		return "", tokenbox.ErrCiphertext
	}
	return plain, nil
}
