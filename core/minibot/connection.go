package minibot

import (
	"context"
	"sync"
	"time"

	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/store"
)

// State is the lifecycle stage of a pool entry.
type State string

const (
	StateLaunching State = "launching"
	StateActive    State = "active"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Connection is one pool entry: the bot snapshot plus its provider handle.
type Connection struct {
	BotID      int64
	LaunchedAt time.Time

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.RWMutex
	bot       store.Bot
	def       flow.Definition
	conn      Conn
	state     State
	transport string
	err       error
	started   bool
}

func newConnection(bot store.Bot, def flow.Definition) *Connection {
	return &Connection{
		BotID:      bot.ID,
		LaunchedAt: time.Now(),
		ready:      make(chan struct{}),
		bot:        bot,
		def:        def,
		state:      StateLaunching,
	}
}

// Bot returns the bot record the connection was started or refreshed with.
func (c *Connection) Bot() store.Bot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

// Flow returns the parsed custom flow definition; empty for quick bots.
func (c *Connection) Flow() flow.Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.def
}

// State returns the lifecycle stage.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the failure cause of a failed entry.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Outbound returns the send surface, or nil unless the entry is active.
func (c *Connection) Outbound() Outbound {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateActive {
		return nil
	}
	return c.conn
}

// Ready is closed once the entry leaves the launching state.
func (c *Connection) Ready() <-chan struct{} {
	return c.ready
}

// Await blocks until the handshake settles. It returns nil for an active
// entry, the failure cause for a failed one and ErrNotActive once stopped.
func (c *Connection) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateActive:
		return nil
	case StateFailed:
		if c.err != nil {
			return c.err
		}
	}
	return ErrNotActive
}

func (c *Connection) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Connection) activate(conn Conn, transport string) bool {
	c.mu.Lock()
	if c.state != StateLaunching {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.transport = transport
	c.state = StateActive
	c.started = true
	c.mu.Unlock()
	c.markReady()
	return true
}

func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.state == StateLaunching {
		c.state = StateFailed
		c.err = err
	}
	c.mu.Unlock()
	c.markReady()
}

// close stops polling. It is safe on entries that never started or were
// already closed.
func (c *Connection) close() {
	c.mu.Lock()
	conn, started := c.conn, c.started
	c.conn = nil
	c.started = false
	if c.state != StateFailed {
		c.state = StateStopped
	}
	c.mu.Unlock()
	c.markReady()

	if conn == nil || !started {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Warn(logger.WithBotID(context.Background(), c.BotID), logger.CompPool, "bot.stop_panic")
			}
		}()
		conn.Stop()
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.Warn(logger.WithBotID(context.Background(), c.BotID), logger.CompPool, "bot.stop_timeout")
	}
}

func (c *Connection) setBot(bot store.Bot, def flow.Definition) {
	c.mu.Lock()
	c.bot = bot
	c.def = def
	c.mu.Unlock()
}

func (c *Connection) debug() DebugEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := DebugEntry{
		BotID:      c.BotID,
		Name:       c.bot.Name,
		Username:   c.bot.Username,
		Type:       string(c.bot.Type),
		State:      c.state,
		Transport:  c.transport,
		LaunchedAt: c.LaunchedAt,
	}
	if c.err != nil {
		e.Err = logger.Redact(c.err.Error())
	}
	return e
}
