package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TolesaD/botomics/core/minibot"
	"github.com/TolesaD/botomics/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

const token = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawX"

type creds struct {
	bots map[int64]store.Bot
}

func (c creds) ListActive(context.Context) ([]store.Bot, error) {
	var out []store.Bot
	for _, b := range c.bots {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c creds) GetByID(_ context.Context, id int64) (store.Bot, error) {
	b, ok := c.bots[id]
	if !ok {
		return store.Bot{}, store.ErrNotFound
	}
	return b, nil
}

func (c creds) SetActive(context.Context, int64, bool) error { return nil }

func (c creds) DecryptToken(b store.Bot) (string, error) {
	if b.EncryptedToken == "broken" {
		return "", errors.New("ciphertext")
	}
	return token, nil
}

// idleConn is a provider handle that accepts everything and polls nothing.
type idleConn struct {
	once sync.Once
	stop chan struct{}
}

func (c *idleConn) Send(tele.Recipient, interface{}, ...interface{}) (*tele.Message, error) {
	return &tele.Message{}, nil
}

func (c *idleConn) Edit(tele.Editable, interface{}, ...interface{}) (*tele.Message, error) {
	return &tele.Message{}, nil
}

func (c *idleConn) Respond(*tele.Callback, ...*tele.CallbackResponse) error { return nil }

func (c *idleConn) SetCommands(...interface{}) error { return nil }

func (c *idleConn) Handle(interface{}, tele.HandlerFunc, ...tele.MiddlewareFunc) {}

func (c *idleConn) Use(...tele.MiddlewareFunc) {}

func (c *idleConn) Start() { <-c.stop }

func (c *idleConn) Stop() { c.once.Do(func() { close(c.stop) }) }

func newPool(t *testing.T, bots ...store.Bot) *minibot.Pool {
	t.Helper()
	src := creds{bots: map[int64]store.Bot{}}
	for _, b := range bots {
		src.bots[b.ID] = b
	}
	dial := func(_ context.Context, botID int64, _ string, _ minibot.Transport) (minibot.Conn, error) {
		if botID == 99 {
			return nil, errors.New("dial: connection refused")
		}
		return &idleConn{stop: make(chan struct{})}, nil
	}
	p := minibot.NewPool(src, nil, dial, minibot.Options{
		StartupTimeout: time.Second,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	})
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func bot(id int64) store.Bot {
	return store.Bot{ID: id, OwnerID: 1, Name: "Shop", Username: "shop_bot", Type: store.BotQuick, IsActive: true}
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealthAndStatus(t *testing.T) {
	h := NewHandler(newPool(t)).Router()

	w, body := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = do(t, h, http.MethodGet, "/bots/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["initialized"])
	assert.EqualValues(t, 0, body["active_count"])
}

func TestReinitStartsActiveBots(t *testing.T) {
	disabled := bot(3)
	disabled.IsActive = false
	h := NewHandler(newPool(t, bot(1), bot(2), disabled)).Router()

	w, body := do(t, h, http.MethodPost, "/bots/reinit")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["started"])

	_, body = do(t, h, http.MethodGet, "/bots/debug")
	entries, ok := body["bots"].([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["bot_id"])
	assert.Equal(t, "active", first["state"])
}

func TestStartAndStopOneBot(t *testing.T) {
	h := NewHandler(newPool(t, bot(1))).Router()

	w, body := do(t, h, http.MethodPost, "/bots/1/start?wait=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", body["state"])

	w, body = do(t, h, http.MethodPost, "/bots/1/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["stopped"])

	_, body = do(t, h, http.MethodPost, "/bots/1/stop")
	assert.Equal(t, false, body["stopped"])
}

func TestStartErrors(t *testing.T) {
	broken := bot(2)
	broken.EncryptedToken = "broken"
	disabled := bot(3)
	disabled.IsActive = false
	h := NewHandler(newPool(t, broken, disabled, bot(99))).Router()

	w, _ := do(t, h, http.MethodPost, "/bots/abc/start")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodPost, "/bots/1/start")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, http.MethodPost, "/bots/2/start")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = do(t, h, http.MethodPost, "/bots/3/start")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := do(t, h, http.MethodPost, "/bots/99/start?wait=1")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "failed", body["state"])
}
