package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

type fakeDir struct {
	admins []store.Admin
	err    error
}

func (f fakeDir) ListAdmins(context.Context, int64) ([]store.Admin, error) {
	return f.admins, f.err
}

type sent struct {
	to     string
	what   interface{}
	markup *tele.ReplyMarkup
}

type fakeConn struct {
	failFor map[string]error
	sent    []sent
}

func (c *fakeConn) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if err := c.failFor[to.Recipient()]; err != nil {
		return nil, err
	}
	s := sent{to: to.Recipient(), what: what}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			s.markup = so.ReplyMarkup
		}
	}
	c.sent = append(c.sent, s)
	return &tele.Message{}, nil
}

func newNotifier(dir Directory) *Notifier {
	return New(dir, sender.New(sender.Options{}))
}

func TestRecipientsDeduplicatesOwner(t *testing.T) {
	n := newNotifier(fakeDir{admins: []store.Admin{{UserID: 2}, {UserID: 1}, {UserID: 3}, {UserID: 2}}})
	ids, err := n.Recipients(context.Background(), store.Bot{ID: 9, OwnerID: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestFeedbackIsolatesFailures(t *testing.T) {
	n := newNotifier(fakeDir{admins: []store.Admin{{UserID: 2}, {UserID: 3}}})
	conn := &fakeConn{failFor: map[string]error{
		"2": &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
	}}
	fb := store.Feedback{ID: 77, BotID: 9, UserID: 50, FirstName: "Ada", MessageType: "text", Content: "hello"}

	rep, err := n.Feedback(context.Background(), conn, store.Bot{ID: 9, OwnerID: 1, Username: "shop_bot"}, fb)
	require.NoError(t, err)
	assert.Equal(t, Report{Recipients: 3, Sent: 2, Failed: 1}, rep)

	require.Len(t, conn.sent, 2)
	assert.Equal(t, "1", conn.sent[0].to)
	assert.Equal(t, "3", conn.sent[1].to)

	text, ok := conn.sent[0].what.(string)
	require.True(t, ok)
	assert.Contains(t, text, "@shop_bot")
	assert.Contains(t, text, "Ada")
	assert.Contains(t, text, "hello")

	require.NotNil(t, conn.sent[0].markup)
	btn := conn.sent[0].markup.InlineKeyboard[0][0]
	assert.Equal(t, ReplyAction, btn.Unique)
	assert.Equal(t, "77", btn.Data)
	assert.NotSame(t, conn.sent[0].markup, conn.sent[1].markup)
}

func TestFeedbackDirectoryError(t *testing.T) {
	n := newNotifier(fakeDir{err: errors.New("db down")})
	_, err := n.Feedback(context.Background(), &fakeConn{}, store.Bot{ID: 1, OwnerID: 1}, store.Feedback{})
	require.Error(t, err)
}

func TestPayloadMedia(t *testing.T) {
	cases := map[string]interface{}{
		"photo":    &tele.Photo{},
		"video":    &tele.Video{},
		"document": &tele.Document{},
		"audio":    &tele.Audio{},
		"voice":    &tele.Voice{},
	}
	for kind, want := range cases {
		got := Payload(store.Feedback{MessageType: kind, FileID: "file-1", Content: "cap"}, "hdr")
		assert.IsType(t, want, got, kind)
	}

	photo := Payload(store.Feedback{MessageType: "photo", FileID: "f", Content: "look"}, "hdr").(*tele.Photo)
	assert.Equal(t, "f", photo.FileID)
	assert.Equal(t, "hdr\n\nlook", photo.Caption)

	sticker := Payload(store.Feedback{MessageType: "sticker", FileID: "s"}, "hdr")
	assert.Equal(t, "hdr\n\n[sticker]", sticker)

	noFile := Payload(store.Feedback{MessageType: "photo", Content: "x"}, "hdr")
	assert.Equal(t, "hdr\n\n[photo] x", noFile)
}

func TestFlowCompleted(t *testing.T) {
	n := newNotifier(fakeDir{})
	conn := &fakeConn{}
	rep, err := n.FlowCompleted(context.Background(), conn, store.Bot{ID: 1, OwnerID: 4, Name: "Shop"},
		&tele.User{ID: 8, FirstName: "Ada"}, "survey", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Contains(t, conn.sent[0].what, `completed flow "survey"`)
	assert.Contains(t, conn.sent[0].what, "2 field(s)")
}
