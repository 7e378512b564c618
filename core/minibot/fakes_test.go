package minibot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TolesaD/botomics/core/store"

	tele "gopkg.in/telebot.v4"
)

const validToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawX"

func noSleep(context.Context, time.Duration) error { return nil }

// fakeCreds serves bots and tokens from memory.
type fakeCreds struct {
	mu       sync.Mutex
	bots     []store.Bot
	tokens   map[int64]string
	disabled []int64
	listErr  error
}

func newFakeCreds(bots ...store.Bot) *fakeCreds {
	c := &fakeCreds{tokens: make(map[int64]string)}
	for _, b := range bots {
		c.bots = append(c.bots, b)
		c.tokens[b.ID] = validToken
	}
	return c
}

func (c *fakeCreds) ListActive(context.Context) ([]store.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []store.Bot
	for _, b := range c.bots {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *fakeCreds) GetByID(_ context.Context, id int64) (store.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bots {
		if b.ID == id {
			return b, nil
		}
	}
	return store.Bot{}, store.ErrNotFound
}

func (c *fakeCreds) SetActive(_ context.Context, id int64, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.bots {
		if c.bots[i].ID == id {
			c.bots[i].IsActive = active
		}
	}
	if !active {
		c.disabled = append(c.disabled, id)
	}
	return nil
}

func (c *fakeCreds) DecryptToken(b store.Bot) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[b.ID]
	if !ok {
		return "", errors.New("ciphertext")
	}
	return tok, nil
}

type fakeBans map[int64]bool

func (f fakeBans) IsBanned(_ context.Context, id int64) (bool, error) { return f[id], nil }

type sentMsg struct {
	To     int64
	Text   string
	Markup *tele.ReplyMarkup
}

// fakeConn records outbound calls. Start blocks until Stop.
type fakeConn struct {
	mu       sync.Mutex
	sent     []sentMsg
	edits    []string
	menus    int
	handlers map[interface{}]tele.HandlerFunc
	fail     map[int64]error

	stopOnce sync.Once
	stopCh   chan struct{}
	started  atomic.Int32
	stopped  atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{stopCh: make(chan struct{}), handlers: make(map[interface{}]tele.HandlerFunc)}
}

func (f *fakeConn) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	msg := sentMsg{To: id}
	if s, ok := what.(string); ok {
		msg.Text = s
	}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok && so != nil {
			msg.Markup = so.ReplyMarkup
		}
	}
	f.sent = append(f.sent, msg)
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{ID: id}}, nil
}

func (f *fakeConn) Edit(_ tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := what.(string); ok {
		f.edits = append(f.edits, s)
	}
	return &tele.Message{}, nil
}

func (f *fakeConn) Respond(*tele.Callback, ...*tele.CallbackResponse) error { return nil }

func (f *fakeConn) SetCommands(...interface{}) error {
	f.mu.Lock()
	f.menus++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Handle(endpoint interface{}, h tele.HandlerFunc, _ ...tele.MiddlewareFunc) {
	f.mu.Lock()
	f.handlers[endpoint] = h
	f.mu.Unlock()
}

func (f *fakeConn) Use(...tele.MiddlewareFunc) {}

func (f *fakeConn) Start() {
	f.started.Add(1)
	<-f.stopCh
}

func (f *fakeConn) Stop() {
	f.stopped.Add(1)
	f.stopOnce.Do(func() { close(f.stopCh) })
}

func (f *fakeConn) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func (f *fakeConn) textsTo(id int64) []string {
	var out []string
	for _, m := range f.messages() {
		if m.To == id {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeConn) lastTo(id int64) string {
	texts := f.textsTo(id)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// fakeDialer counts dials per bot and hands out fakeConns. A bot listed in
// block waits until its channel is closed; failing transports return errors.
type fakeDialer struct {
	mu      sync.Mutex
	calls   map[int64]int
	conns   map[int64][]*fakeConn
	block   map[int64]chan struct{}
	failOn  map[string]bool
	entered chan int64
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		calls:  make(map[int64]int),
		conns:  make(map[int64][]*fakeConn),
		block:  make(map[int64]chan struct{}),
		failOn: make(map[string]bool),
	}
}

func (d *fakeDialer) dial(ctx context.Context, botID int64, _ string, t Transport) (Conn, error) {
	d.mu.Lock()
	d.calls[botID]++
	wait := d.block[botID]
	fail := d.failOn[t.Name]
	entered := d.entered
	d.mu.Unlock()

	if entered != nil {
		select {
		case entered <- botID:
		default:
		}
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("dial " + t.Name + ": connection refused")
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns[botID] = append(d.conns[botID], c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) count(botID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[botID]
}

func (d *fakeDialer) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func (d *fakeDialer) connsOf(botID int64) []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns[botID]...)
}

type fakeWiring struct {
	mu    sync.Mutex
	wired []int64
}

func (w *fakeWiring) Wire(c *Connection, _ Conn) {
	w.mu.Lock()
	w.wired = append(w.wired, c.BotID)
	w.mu.Unlock()
}

// fakeStore is an in-memory DataStore, broadcast audience and recorder.
type fakeStore struct {
	mu         sync.Mutex
	banned     map[int64]bool
	admins     map[int64][]store.Admin
	botUsers   map[int64][]int64
	allUsers   []int64
	feedback   map[int64]store.Feedback
	nextID     int64
	welcome    map[int64]string
	touched    []store.BotUser
	touchErr   error
	replied    map[int64]string
	broadcasts []store.Broadcast
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		banned:   make(map[int64]bool),
		admins:   make(map[int64][]store.Admin),
		botUsers: make(map[int64][]int64),
		feedback: make(map[int64]store.Feedback),
		welcome:  make(map[int64]string),
		replied:  make(map[int64]string),
	}
}

func (s *fakeStore) IsBanned(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banned[id], nil
}

func (s *fakeStore) IsAdmin(_ context.Context, botID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins[botID] {
		if a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListAdmins(_ context.Context, botID int64) ([]store.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Admin(nil), s.admins[botID]...), nil
}

func (s *fakeStore) AddAdmin(_ context.Context, a store.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[a.BotID] = append(s.admins[a.BotID], a)
	return nil
}

func (s *fakeStore) RemoveAdmin(_ context.Context, botID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.admins[botID][:0]
	found := false
	for _, a := range s.admins[botID] {
		if a.UserID == userID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	s.admins[botID] = kept
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (s *fakeStore) TouchBotUser(_ context.Context, u store.BotUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	s.touched = append(s.touched, u)
	return nil
}

func (s *fakeStore) CountBotUsers(_ context.Context, botID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.botUsers[botID]), nil
}

func (s *fakeStore) CountPendingFeedback(_ context.Context, botID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.feedback {
		if f.BotID == botID && f.Status == store.FeedbackPending {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreateFeedback(_ context.Context, f store.Feedback) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	s.feedback[f.ID] = f
	return f.ID, nil
}

func (s *fakeStore) GetFeedback(_ context.Context, id int64) (store.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feedback[id]
	if !ok {
		return store.Feedback{}, store.ErrNotFound
	}
	return f, nil
}

func (s *fakeStore) MarkFeedbackReplied(_ context.Context, id, _ int64, reply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feedback[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Status = store.FeedbackReplied
	s.feedback[id] = f
	s.replied[id] = reply
	return nil
}

func (s *fakeStore) UpdateWelcomeMessage(_ context.Context, botID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcome[botID] = text
	return nil
}

func (s *fakeStore) ListBotUserIDs(_ context.Context, botID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.botUsers[botID]...), nil
}

func (s *fakeStore) ListAllUserIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.allUsers...), nil
}

func (s *fakeStore) RecordBroadcast(_ context.Context, b store.Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, b)
	return nil
}

func (s *fakeStore) feedbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feedback)
}

// fakeConnections resolves bots from a fixed map.
type fakeConnections struct {
	mu        sync.Mutex
	conns     map[int64]*Connection
	refreshed []int64
}

func (f *fakeConnections) Lookup(_ context.Context, botID int64) (*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[botID]
	if !ok {
		return nil, ErrNotActive
	}
	return c, nil
}

func (f *fakeConnections) Refresh(_ context.Context, botID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, botID)
	return nil
}

// activeConnection builds an entry that is already past its handshake.
func activeConnection(bot store.Bot, conn Conn) *Connection {
	c := newConnection(bot, parseFlow(context.Background(), bot))
	c.mu.Lock()
	c.conn = conn
	c.state = StateActive
	c.mu.Unlock()
	c.markReady()
	return c
}

func containsText(texts []string, sub string) bool {
	for _, t := range texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}
