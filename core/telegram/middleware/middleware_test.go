package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func messageCtx(userID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: 10,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID, Username: "ada"},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func callbackCtx(userID int64) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: 11,
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   "\freply|5",
		},
	})
}

func TestRecoverSwallowsPanic(t *testing.T) {
	h := Recover(7)(func(tele.Context) error { panic("boom") })
	assert.NotPanics(t, func() {
		assert.NoError(t, h(messageCtx(1, "hi")))
	})
}

func TestRecoverPassesErrors(t *testing.T) {
	want := errors.New("handler failed")
	h := Recover(7)(func(tele.Context) error { return want })
	assert.ErrorIs(t, h(messageCtx(1, "hi")), want)
}

func TestLoggingStoresContext(t *testing.T) {
	c := messageCtx(42, "hello")
	var seen bool
	h := Logging(9)(func(c tele.Context) error {
		ctx, ok := tghelpers.ContextFrom(c)
		require.True(t, ok)
		assert.Equal(t, int64(9), logger.BotIDFrom(ctx))
		assert.Equal(t, int64(42), logger.UserIDFrom(ctx))
		assert.NotEmpty(t, logger.RIDFrom(ctx))
		seen = true
		return nil
	})
	require.NoError(t, h(c))
	assert.True(t, seen)
}

func TestRateLimitPerUser(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimit(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: func(tele.Context) error { limited++; return nil },
		now:       func() time.Time { return now },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(messageCtx(1, "a")))
	require.NoError(t, h(messageCtx(1, "b")))
	require.NoError(t, h(messageCtx(2, "c")))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, limited)

	now = now.Add(1100 * time.Millisecond)
	require.NoError(t, h(messageCtx(1, "d")))
	assert.Equal(t, 3, calls)
}

func TestRateLimitExclusions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mw := RateLimit(RateLimitOptions{
		Interval: time.Minute,
		Exclude:  map[string]struct{}{"callback": {}},
		now:      func() time.Time { return now },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(callbackCtx(1)))
	}
	assert.Equal(t, 3, calls)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", UpdateKind(tele.Update{Message: &tele.Message{}}))
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "inline_query", UpdateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}
