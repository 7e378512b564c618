package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/store"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidToken reports a token that could not be decrypted or is malformed.
	ErrInvalidToken = errors.New("minibot: invalid token")
	// ErrNotActive reports that a bot has no usable connection.
	ErrNotActive = errors.New("minibot: bot not active")
	// ErrHandshake reports that no transport completed the handshake.
	ErrHandshake = errors.New("minibot: handshake failed")
	// ErrPoolClosed reports a start attempted after Shutdown.
	ErrPoolClosed = errors.New("minibot: pool closed")
)

var tokenPattern = regexp.MustCompile(`^[0-9]{5,}:[A-Za-z0-9_-]{30,}$`)

const (
	stopTimeout = 10 * time.Second
	sweepKey    = "initialize"
)

// ValidToken reports whether token is shaped like a Bot API token.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Credentials is the credential store the pool reads bots and tokens from.
type Credentials interface {
	ListActive(ctx context.Context) ([]store.Bot, error)
	GetByID(ctx context.Context, id int64) (store.Bot, error)
	SetActive(ctx context.Context, id int64, active bool) error
	DecryptToken(b store.Bot) (string, error)
}

// BanChecker reports platform bans.
type BanChecker interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Wiring installs handlers on a freshly dialed connection before polling starts.
type Wiring interface {
	Wire(c *Connection, conn Conn)
}

// Options tunes the pool.
type Options struct {
	// StartupDelay is the pause between two startups of a sweep.
	StartupDelay time.Duration
	// StartupTimeout bounds how long the sweep waits for one handshake.
	StartupTimeout time.Duration
	// Transports are tried in order, each once.
	Transports []Transport
	// OnEvict runs after a bot leaves the pool.
	OnEvict func(botID int64)

	Sleep func(ctx context.Context, d time.Duration) error
}

// Status is the pool-level health summary.
type Status struct {
	Initialized bool `json:"initialized"`
	// ActiveCount counts every entry in the pool, including launching ones.
	ActiveCount int   `json:"active_count"`
	Launching   int   `json:"launching"`
	Attempts    int64 `json:"attempts"`
}

// DebugEntry describes one pool entry.
type DebugEntry struct {
	BotID      int64     `json:"bot_id"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	Type       string    `json:"type"`
	State      State     `json:"state"`
	Transport  string    `json:"transport,omitempty"`
	LaunchedAt time.Time `json:"launched_at"`
	Err        string    `json:"err,omitempty"`
}

// Pool owns one live connection per active bot.
type Pool struct {
	creds  Credentials
	bans   BanChecker
	dial   Dialer
	opts   Options
	wiring Wiring

	mu          sync.RWMutex
	conns       map[int64]*Connection
	initialized bool
	closed      bool

	sf       singleflight.Group
	attempts atomic.Int64
}

// NewPool creates an empty pool. Wiring must be set before the first start.
func NewPool(creds Credentials, bans BanChecker, dial Dialer, opts Options) *Pool {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 20 * time.Second
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []Transport{{Name: "primary"}}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Pool{
		creds: creds,
		bans:  bans,
		dial:  dial,
		opts:  opts,
		conns: make(map[int64]*Connection),
	}
}

// SetWiring sets the handler installer used for every new connection.
func (p *Pool) SetWiring(w Wiring) {
	p.mu.Lock()
	p.wiring = w
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StartOne launches bot, replacing any entry it already has. The returned
// connection is launching; use Await to observe the handshake outcome.
func (p *Pool) StartOne(ctx context.Context, bot store.Bot) (*Connection, error) {
	ctx = logger.WithBotID(ctx, bot.ID)
	token, err := p.creds.DecryptToken(bot)
	if err != nil || !ValidToken(token) {
		if err == nil {
			err = errors.New("malformed token")
		}
		logger.Warn(ctx, logger.CompPool, "bot.token_invalid", logger.Err(err))
		return nil, fmt.Errorf("%w: bot %d", ErrInvalidToken, bot.ID)
	}

	c := newConnection(bot, parseFlow(ctx, bot))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	old := p.conns[bot.ID]
	p.conns[bot.ID] = c
	p.mu.Unlock()

	if old != nil {
		logger.Info(ctx, logger.CompPool, "bot.replaced")
		old.close()
	}

	logger.Info(ctx, logger.CompPool, "bot.launching", slog.String("username", bot.Username))
	go p.launch(context.WithoutCancel(ctx), c, token)
	return c, nil
}

func parseFlow(ctx context.Context, bot store.Bot) flow.Definition {
	if bot.Type != store.BotCustom || !bot.HasFlow() {
		return flow.Definition{}
	}
	def, err := flow.Parse(bot.CustomFlow.JSONText)
	if err != nil {
		logger.Warn(ctx, logger.CompFlow, "flow.invalid",
			slog.Int("kept", len(def.Flows)),
			logger.Err(err),
		)
	}
	return def
}

func (p *Pool) current(c *Connection) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conns[c.BotID] == c
}

func (p *Pool) launch(ctx context.Context, c *Connection, token string) {
	start := time.Now()
	var (
		conn    Conn
		lastErr error
		used    string
	)
	for i, t := range p.opts.Transports {
		dialed, err := p.dial(ctx, c.BotID, token, t)
		if err == nil {
			conn, used = dialed, t.Name
			break
		}
		lastErr = err
		level := slog.LevelWarn
		if i == len(p.opts.Transports)-1 {
			level = slog.LevelError
		}
		logger.Event(ctx, logger.CompPool, level, "bot.handshake_failed",
			slog.String("mode", t.Name),
			slog.Int("attempt", i+1),
			logger.Err(err),
		)
		if !p.current(c) {
			break
		}
	}

	if conn == nil {
		c.fail(fmt.Errorf("%w: %v", ErrHandshake, lastErr))
		p.evict(c)
		return
	}

	p.mu.RLock()
	w := p.wiring
	p.mu.RUnlock()
	if w != nil {
		w.Wire(c, conn)
	}

	if !c.activate(conn, used) {
		logger.Info(ctx, logger.CompPool, "bot.launch_abandoned")
		return
	}
	if !p.current(c) {
		c.close()
		return
	}
	logger.Info(ctx, logger.CompPool, "bot.active",
		slog.String("mode", used),
		slog.Duration("duration", time.Since(start)),
	)
	go conn.Start()
}

func (p *Pool) evict(c *Connection) {
	p.mu.Lock()
	removed := p.conns[c.BotID] == c
	if removed {
		delete(p.conns, c.BotID)
	}
	p.mu.Unlock()
	if removed && p.opts.OnEvict != nil {
		p.opts.OnEvict(c.BotID)
	}
}

// StopOne tears the bot's connection down. Stopping an absent bot is not an error.
func (p *Pool) StopOne(ctx context.Context, botID int64) bool {
	p.mu.Lock()
	c, ok := p.conns[botID]
	delete(p.conns, botID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	c.close()
	if p.opts.OnEvict != nil {
		p.opts.OnEvict(botID)
	}
	logger.Info(logger.WithBotID(ctx, botID), logger.CompPool, "bot.stopped")
	return true
}

// StartByID loads the bot record and starts it.
func (p *Pool) StartByID(ctx context.Context, botID int64) (*Connection, error) {
	bot, err := p.creds.GetByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !bot.IsActive {
		return nil, fmt.Errorf("%w: bot %d is disabled", ErrNotActive, botID)
	}
	return p.StartOne(ctx, bot)
}

// Refresh reloads the bot record into its live entry so that handlers see
// updated settings such as the welcome message.
func (p *Pool) Refresh(ctx context.Context, botID int64) error {
	bot, err := p.creds.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	p.mu.RLock()
	c, ok := p.conns[botID]
	p.mu.RUnlock()
	if !ok {
		return ErrNotActive
	}
	c.setBot(bot, parseFlow(ctx, bot))
	return nil
}

// Get returns the entry of botID in whatever state it is.
func (p *Pool) Get(botID int64) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[botID]
	return c, ok
}

// Lookup waits for the bot's handshake and returns its connection once
// active. Absent, failed or stopped bots yield ErrNotActive.
func (p *Pool) Lookup(ctx context.Context, botID int64) (*Connection, error) {
	c, ok := p.Get(botID)
	if !ok {
		return nil, ErrNotActive
	}
	if err := c.Await(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, ErrNotActive
	}
	return c, nil
}

// InitializeAll stops every running bot and starts all active ones. Callers
// arriving while a sweep runs share its result. It returns how many bots
// reached the active state.
func (p *Pool) InitializeAll(ctx context.Context) (int, error) {
	ch := p.sf.DoChan(sweepKey, func() (interface{}, error) {
		return p.sweep(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// ForceReinitializeAll starts a new sweep even when one is in flight.
func (p *Pool) ForceReinitializeAll(ctx context.Context) (int, error) {
	p.sf.Forget(sweepKey)
	return p.InitializeAll(ctx)
}

func (p *Pool) sweep(ctx context.Context) (int, error) {
	attempt := p.attempts.Add(1)
	ctx = logger.WithRID(ctx, "sweep-"+uuid.NewString()[:8])
	start := time.Now()
	logger.Info(ctx, logger.CompPool, "sweep.start", slog.Int64("attempt", attempt))

	p.stopAll(ctx)

	bots, err := p.creds.ListActive(ctx)
	if err != nil {
		logger.Error(ctx, logger.CompPool, "sweep.list_failed", logger.Err(err))
		return 0, fmt.Errorf("list active bots: %w", err)
	}

	started := 0
	for i, bot := range bots {
		if i > 0 {
			if err := p.opts.Sleep(ctx, p.opts.StartupDelay); err != nil {
				break
			}
		}
		if p.startInSweep(ctx, bot) {
			started++
		}
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	logger.Info(ctx, logger.CompPool, "sweep.done",
		slog.Int("total", len(bots)),
		slog.Int("count", started),
		slog.Duration("duration", time.Since(start)),
	)
	return started, nil
}

func (p *Pool) startInSweep(ctx context.Context, bot store.Bot) (ok bool) {
	bctx := logger.WithBotID(ctx, bot.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(bctx, logger.CompPool, "bot.start_panic", slog.String("err", fmt.Sprint(r)))
			ok = false
		}
	}()

	if p.bans != nil {
		banned, err := p.bans.IsBanned(ctx, bot.OwnerID)
		if err != nil {
			logger.Warn(bctx, logger.CompPool, "bot.ban_check_failed", logger.Err(err))
		} else if banned {
			if err := p.creds.SetActive(ctx, bot.ID, false); err != nil {
				logger.Warn(bctx, logger.CompPool, "bot.deactivate_failed", logger.Err(err))
			}
			logger.Info(bctx, logger.CompPool, "bot.skipped", slog.String("reason", "owner_banned"))
			return false
		}
	}

	c, err := p.StartOne(ctx, bot)
	if err != nil {
		return false
	}
	wait, cancel := context.WithTimeout(ctx, p.opts.StartupTimeout)
	defer cancel()
	if err := c.Await(wait); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn(bctx, logger.CompPool, "bot.startup_timeout")
		}
		return false
	}
	return true
}

func (p *Pool) stopAll(ctx context.Context) int {
	p.mu.Lock()
	old := p.conns
	p.conns = make(map[int64]*Connection)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range old {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.close()
		}(c)
	}
	wg.Wait()
	if p.opts.OnEvict != nil {
		for id := range old {
			p.opts.OnEvict(id)
		}
	}
	if len(old) > 0 {
		logger.Info(ctx, logger.CompPool, "pool.stopped_all", slog.Int("count", len(old)))
	}
	return len(old)
}

// Shutdown stops every connection. Later starts fail with ErrPoolClosed.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stopAll(ctx)
}

// Status summarizes the pool.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{
		Initialized: p.initialized,
		ActiveCount: len(p.conns),
		Attempts:    p.attempts.Load(),
	}
	for _, c := range p.conns {
		if c.State() == StateLaunching {
			st.Launching++
		}
	}
	return st
}

// DebugDump lists every entry ordered by bot id.
func (p *Pool) DebugDump() []DebugEntry {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	out := make([]DebugEntry, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.debug())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}
