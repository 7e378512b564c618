package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

type fakeAudience struct {
	bot      map[int64][]int64
	all      []int64
	err      error
	askedBot int64
}

func (f *fakeAudience) ListBotUserIDs(_ context.Context, botID int64) ([]int64, error) {
	f.askedBot = botID
	return f.bot[botID], f.err
}

func (f *fakeAudience) ListAllUserIDs(context.Context) ([]int64, error) {
	return f.all, f.err
}

type fakeRecorder struct {
	rows []store.Broadcast
	err  error
}

func (f *fakeRecorder) RecordBroadcast(_ context.Context, b store.Broadcast) error {
	f.rows = append(f.rows, b)
	return f.err
}

type fakeConn struct {
	mu      sync.Mutex
	fail    map[string]error
	panicOn string
	sent    []string
	edits   []string
}

func (c *fakeConn) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := to.Recipient()
	if r == c.panicOn {
		panic("connection exploded")
	}
	if err := c.fail[r]; err != nil {
		return nil, err
	}
	c.sent = append(c.sent, r)
	return &tele.Message{ID: len(c.sent), Chat: &tele.Chat{ID: 1}}, nil
}

func (c *fakeConn) Edit(_ tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, fmt.Sprint(what))
	return &tele.Message{}, nil
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(100 + i)
	}
	return out
}

func newEngine(aud Audience, rec Recorder, pauses *[]time.Duration) *Engine {
	return New(aud, rec, sender.New(sender.Options{}), Options{
		ProgressEvery: 2,
		PauseEvery:    3,
		Pause:         time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			*pauses = append(*pauses, d)
			return nil
		},
	})
}

func TestRunIsolatesRecipientFailures(t *testing.T) {
	aud := &fakeAudience{bot: map[int64][]int64{7: ids(7)}}
	rec := &fakeRecorder{}
	var pauses []time.Duration
	e := newEngine(aud, rec, &pauses)

	conn := &fakeConn{
		fail:    map[string]error{"102": &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}},
		panicOn: "104",
	}
	sum, err := e.Run(context.Background(), conn, Request{BotID: 7, SentBy: 1, Message: "hello", ReportTo: 1})
	require.NoError(t, err)

	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, 5, sum.Sent)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, sum.Total, sum.Sent+sum.Failed)
	assert.True(t, sum.Recorded)
	assert.NotEmpty(t, sum.RunID)
	assert.EqualValues(t, 7, aud.askedBot)

	require.Len(t, rec.rows, 1)
	row := rec.rows[0]
	assert.True(t, row.BotID.Valid)
	assert.EqualValues(t, 7, row.BotID.Int64)
	assert.Equal(t, store.BroadcastBot, row.BroadcastType)
	assert.Equal(t, row.TotalUsers, row.SuccessfulSends+row.FailedSends)

	// progress after 2, 4, 6 sends and the final summary
	require.Len(t, conn.edits, 4)
	assert.Contains(t, conn.edits[0], "2/7")
	assert.Contains(t, conn.edits[3], "Failed: 2")

	// pause after 3 and 6 sends, never after the last one
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses)
}

func TestRunPlatformWide(t *testing.T) {
	aud := &fakeAudience{all: ids(3)}
	rec := &fakeRecorder{}
	var pauses []time.Duration
	e := newEngine(aud, rec, &pauses)

	conn := &fakeConn{}
	sum, err := e.Run(context.Background(), conn, Request{SentBy: 1, Message: "platform news"})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Sent)

	require.Len(t, rec.rows, 1)
	assert.False(t, rec.rows[0].BotID.Valid)
	assert.Equal(t, store.BroadcastPlatform, rec.rows[0].BroadcastType)
	assert.Empty(t, conn.edits, "no progress message without a report chat")
}

func TestRunNoRecipients(t *testing.T) {
	rec := &fakeRecorder{}
	var pauses []time.Duration
	e := newEngine(&fakeAudience{}, rec, &pauses)

	_, err := e.Run(context.Background(), &fakeConn{}, Request{BotID: 1})
	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Empty(t, rec.rows)
}

func TestRunAuditFailureDoesNotEscape(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	var pauses []time.Duration
	e := newEngine(&fakeAudience{all: ids(1)}, rec, &pauses)

	sum, err := e.Run(context.Background(), &fakeConn{}, Request{Message: "x"})
	require.NoError(t, err)
	assert.False(t, sum.Recorded)
	assert.Equal(t, 1, sum.Sent)
}

func TestRunCancelledCountsRemainderAsFailed(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(&fakeAudience{all: ids(5)}, rec, sender.New(sender.Options{}), Options{
		PauseEvery: 2,
		Sleep: func(context.Context, time.Duration) error {
			return context.Canceled
		},
	})

	sum, err := e.Run(context.Background(), &fakeConn{}, Request{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 3, sum.Failed)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, 5, rec.rows[0].TotalUsers)
}
