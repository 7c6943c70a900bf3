// Package basectx implements the base context (C9 in spec.md §4.9) every
// node shares: it owns the broker client, a database handle, and a
// blob-store handle for the process's lifetime, composes their open/close
// ordering, and routes pub/sub deliveries to per-channel handlers.
package basectx

import (
	"context"
	"sort"
	"sync"

	"github.com/geoffjay/dispatchd/core/config"
	"github.com/geoffjay/dispatchd/broker"
	log "github.com/sirupsen/logrus"
)

// Handler processes one pub/sub delivery on a registered channel.
type Handler func(ctx context.Context, channel string, data []byte) error

// DB is the lifecycle surface Context needs from the audit store; *
// store/db.Store satisfies it.
type DB interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Blob is the lifecycle surface Context needs from the blob store;
// *store/blob.Store satisfies it.
type Blob interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

type route struct {
	fn    Handler
	async bool
}

// Context is the base context shared by every node role. It is built
// before any of the broker/DB/blob-store handles are opened; callers
// register their subscribe routes, then call Open.
type Context struct {
	cfg  config.NodeConfig
	db   DB
	blob Blob

	broker *broker.Client

	mu     sync.RWMutex
	routes map[string]route
}

// New builds a Context for a node. db and blob may be nil for a role that
// does not need persistence (e.g. a worker module with no file uploads).
func New(cfg config.NodeConfig, database DB, blobStore Blob) *Context {
	return &Context{
		cfg:    cfg,
		db:     database,
		blob:   blobStore,
		routes: make(map[string]route),
	}
}

// OnSync registers a blocking handler for channel: the broker's receive
// loop waits for it to return before processing the next delivery.
func (c *Context) OnSync(channel string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[channel] = route{fn: fn, async: false}
}

// OnAsync registers a non-blocking handler for channel: it runs in its own
// goroutine, and its error (if any) is only logged, matching spec.md
// §4.9's "the handler may be synchronous or asynchronous."
func (c *Context) OnAsync(channel string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[channel] = route{fn: fn, async: true}
}

// Provider is the node's identity tag, attached to every outbound
// Request and used to solicit worker descriptors (spec.md §4.8).
func (c *Context) Provider() string { return c.cfg.Provider }

// CommandPrefix is the prefix distinguishing command messages from plain
// chat (spec.md §4.4), defaulting to "/".
func (c *Context) CommandPrefix() string {
	if c.cfg.CommandPrefix == "" {
		return "/"
	}
	return c.cfg.CommandPrefix
}

// Debug and Verbose surface the node's log-detail knobs (spec.md §6).
func (c *Context) Debug() bool   { return c.cfg.Debug }
func (c *Context) Verbose() int  { return c.cfg.Verbose }
func (c *Context) Config() config.NodeConfig { return c.cfg }

// Broker returns the owned broker client. Valid only after Open.
func (c *Context) Broker() *broker.Client { return c.broker }

// DB returns the owned database handle (nil if none was configured).
func (c *Context) DB() DB { return c.db }

// BlobStore returns the owned blob-store handle (nil if none was
// configured).
func (c *Context) BlobStore() Blob { return c.blob }

// Channels returns the sorted set of channels the currently registered
// routes cover -- the subscribe list Open derives its broker.WithChannels
// call from. Exported so tests can assert a route was actually wired into
// the subscription set, not just into the route table.
func (c *Context) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.routes))
	for channel := range c.routes {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// Open composes the child handles' open calls in creation order -- DB,
// storage, broker -- per spec.md §4.9, then starts the broker's
// subscriber loop wired to dispatch. The channel set subscribed is derived
// from whatever routes OnSync/OnAsync registered before Open was called --
// otherwise a route's handler would be wired but its channel never
// SUBSCRIBE'd, and its events would simply never arrive.
func (c *Context) Open(ctx context.Context, opts ...broker.Option) error {
	if c.db != nil {
		if err := c.db.Open(ctx); err != nil {
			return err
		}
	}
	if c.blob != nil {
		if err := c.blob.Open(ctx); err != nil {
			return err
		}
	}

	channels := c.Channels()

	allOpts := []broker.Option{broker.WithOnSubscribe(c.dispatch)}
	if len(channels) > 0 {
		allOpts = append(allOpts, broker.WithChannels(channels...))
	}
	allOpts = append(allOpts, opts...)

	c.broker = broker.New(c.cfg.Broker, allOpts...)
	return c.broker.Open(ctx)
}

// Close tears down the child handles in reverse creation order: broker,
// storage, DB.
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	if c.broker != nil {
		if err := c.broker.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.blob != nil {
		if err := c.blob.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Dispatch routes a single channel/data delivery through the registered
// routes exactly as the broker's onSubscribe callback would. Exported so
// tests can drive a register/unregister event through the same lookup the
// live subscriber uses, instead of poking a component's internal table
// directly.
func (c *Context) Dispatch(ctx context.Context, channel string, data []byte) error {
	return c.dispatch(ctx, channel, data)
}

// dispatch is the broker's onSubscribe callback: it looks channel up in
// the route table and invokes the matching handler, synchronously or in a
// goroutine per its registration. An unmapped channel logs a warning
// (spec.md §4.9).
func (c *Context) dispatch(ctx context.Context, channel string, data []byte) error {
	c.mu.RLock()
	r, ok := c.routes[channel]
	c.mu.RUnlock()

	if !ok {
		log.WithField("channel", channel).Warn("basectx: no handler for channel")
		return nil
	}

	if r.async {
		go func() {
			if err := r.fn(ctx, channel, data); err != nil {
				log.WithField("channel", channel).WithError(err).Error("basectx: async handler failed")
			}
		}()
		return nil
	}
	return r.fn(ctx, channel, data)
}
