package sender

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type call struct {
	to   string
	what interface{}
	mode tele.ParseMode
}

type scriptedConn struct {
	errs  []error
	calls []call
}

func (c *scriptedConn) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	cl := call{to: to.Recipient(), what: what}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			cl.mode = so.ParseMode
		}
	}
	c.calls = append(c.calls, cl)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &tele.Message{ID: len(c.calls)}, nil
}

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func timeoutErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestDeliverRetriesTransientErrors(t *testing.T) {
	var waits []time.Duration
	s := New(Options{MaxRetries: 2, RetryBackoff: time.Second, Sleep: noSleep(&waits)})
	conn := &scriptedConn{errs: []error{timeoutErr(), timeoutErr(), nil}}

	msg, err := s.Deliver(context.Background(), conn, tele.ChatID(5), "hi")
	require.NoError(t, err)
	assert.Equal(t, 3, msg.ID)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	assert.Equal(t, "5", conn.calls[0].to)
}

func TestDeliverHonoursFloodWait(t *testing.T) {
	var waits []time.Duration
	s := New(Options{MaxRetries: 1, Sleep: noSleep(&waits)})
	conn := &scriptedConn{errs: []error{tele.FloodError{RetryAfter: 3}, nil}}

	_, err := s.Deliver(context.Background(), conn, tele.ChatID(1), "hi")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, waits)
}

func TestDeliverStopsOnPermanentError(t *testing.T) {
	var waits []time.Duration
	s := New(Options{MaxRetries: 3, Sleep: noSleep(&waits)})
	blocked := &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	conn := &scriptedConn{errs: []error{blocked}}

	_, err := s.Deliver(context.Background(), conn, tele.ChatID(1), "hi")
	require.Error(t, err)
	assert.Len(t, conn.calls, 1)
	assert.Empty(t, waits)
	assert.Equal(t, KindForbidden, Classify(err))
}

func TestDeliverTextLadder(t *testing.T) {
	s := New(Options{Sleep: noSleep(new([]time.Duration))})
	parse := &tele.Error{Code: 400, Description: "Bad Request: can't parse entities"}
	conn := &scriptedConn{errs: []error{parse, parse, nil}}

	_, err := s.DeliverText(context.Background(), conn, tele.ChatID(1), "<b>x", nil)
	require.NoError(t, err)
	require.Len(t, conn.calls, 3)
	assert.Equal(t, tele.ModeHTML, conn.calls[0].mode)
	assert.Equal(t, tele.ModeMarkdown, conn.calls[1].mode)
	assert.Equal(t, tele.ModeDefault, conn.calls[2].mode)
}

func TestDeliverTextDoesNotDowngradeOnForbidden(t *testing.T) {
	s := New(Options{Sleep: noSleep(new([]time.Duration))})
	conn := &scriptedConn{errs: []error{&tele.Error{Code: 403, Description: "Forbidden"}}}

	_, err := s.DeliverText(context.Background(), conn, tele.ChatID(1), "x", nil)
	require.Error(t, err)
	assert.Len(t, conn.calls, 1)
}

func TestDeliverTextExhaustsLadder(t *testing.T) {
	s := New(Options{Sleep: noSleep(new([]time.Duration))})
	parse := &tele.Error{Code: 400, Description: "Bad Request"}
	conn := &scriptedConn{errs: []error{parse, parse, parse}}

	_, err := s.DeliverText(context.Background(), conn, tele.ChatID(1), "x", nil)
	require.Error(t, err)
	assert.Len(t, conn.calls, len(Ladder))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindDial, Classify(timeoutErr()))
	assert.Equal(t, KindFlood, Classify(tele.FloodError{RetryAfter: 1}))
	assert.Equal(t, KindHTTP5xx, Classify(errors.New("telegram: internal (502)")))
	assert.Equal(t, KindHTTP4xx, Classify(&tele.Error{Code: 404}))
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")))
}
