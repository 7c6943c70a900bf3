// Package broker implements the fabric's broker client (C1 in spec.md
// §4.1): connect/ping, a background pub/sub subscriber with a bounded
// receive loop, blocking pop, and pipelined push-with-expiry. The client
// wraps github.com/redis/go-redis/v9, the Redis driver the system this
// fabric was distilled from (osom_api/mq/client.py's MqClient, built on
// redis.asyncio) uses directly. plantd's own broker module was a
// ZeroMQ majordomo broker (core/mdp); its liveness/reconnect shape and
// logrus field-logging convention are kept here, retargeted at a
// transport that natively supports BRPOP and pipelined LPUSH+EXPIRE,
// which majordomo/ZMQ does not (see DESIGN.md).
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geoffjay/dispatchd/core/config"
	"github.com/geoffjay/dispatchd/core/errs"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// SubscribeHandler processes one pub/sub delivery. Returning an error only
// logs; it never stops the subscriber loop (the "shield" in spec.md
// §4.1's lifecycle step 4).
type SubscribeHandler func(ctx context.Context, channel string, data []byte) error

// Client is the broker connection owned by a node's base context (C9) for
// its entire process lifetime.
type Client struct {
	cfg    config.BrokerConfig
	rdb    *redis.Client
	status *Status

	onConnect   func(ctx context.Context) error
	onSubscribe SubscribeHandler
	onClosing   func(ctx context.Context) error
	channels    []string

	mu       sync.Mutex
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closedCh chan struct{}
}

// Option configures a Client before Open.
type Option func(*Client)

// WithOnConnect sets the callback invoked once the health probe succeeds
// and before the subscription loop starts.
func WithOnConnect(fn func(ctx context.Context) error) Option {
	return func(c *Client) { c.onConnect = fn }
}

// WithOnSubscribe sets the per-message dispatch handler.
func WithOnSubscribe(fn SubscribeHandler) Option {
	return func(c *Client) { c.onSubscribe = fn }
}

// WithOnClosing sets the callback invoked just before the subscriber
// unsubscribes and disconnects.
func WithOnClosing(fn func(ctx context.Context) error) Option {
	return func(c *Client) { c.onClosing = fn }
}

// WithChannels sets the channel set to subscribe to, defaulting to a
// single broadcast channel if never called.
func WithChannels(channels ...string) Option {
	return func(c *Client) { c.channels = channels }
}

// New builds a Client bound to cfg. Open must be called before any other
// method.
func New(cfg config.BrokerConfig, opts ...Option) *Client {
	c := &Client{cfg: cfg, status: &Status{}}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.channels) == 0 {
		c.channels = []string{"/osom/api/broadcast"}
	}
	return c
}

// Status returns the client's connection/error tracker, grounded on
// plantd's broker/state.go package-level status tracking, generalized
// into a per-client value so multiple clients in one process (tests) don't
// share global state.
func (c *Client) Status() *Status { return c.status }

// Open issues a health probe, invokes onConnect, subscribes to the
// configured channels, and starts the background receive loop. It returns
// once the probe and onConnect have both succeeded; the receive loop runs
// until Close.
func (c *Client) Open(ctx context.Context) error {
	opts, err := redis.ParseURL(c.cfg.URL)
	if err != nil {
		c.status.SetLastError(err)
		return &errs.ConnectFailureError{Cause: err}
	}
	if c.cfg.ConnectionTimeout > 0 {
		opts.DialTimeout = c.cfg.ConnectionTimeout
	}
	c.rdb = redis.NewClient(opts)

	probeCtx := ctx
	if c.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := c.rdb.Ping(probeCtx).Err(); err != nil {
		c.status.SetLastError(err)
		return &errs.ConnectFailureError{Cause: err}
	}
	c.status.SetStatus(StatusConnected)

	if c.onConnect != nil {
		if err := c.onConnect(ctx); err != nil {
			c.status.SetLastError(err)
			return err
		}
	}

	c.pubsub = c.rdb.Subscribe(ctx, c.channels...)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.closedCh = make(chan struct{})

	c.wg.Add(1)
	go c.receiveLoop(loopCtx)

	log.WithFields(log.Fields{"channels": c.channels}).Info("broker: subscriber loop started")
	return nil
}

func (c *Client) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.closedCh)

	timeout := c.cfg.SubscribeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		msg, err := c.pubsub.ReceiveMessage(msgCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Timeout slices are expected; only log unexpected errors.
			if !isTimeout(err) {
				log.WithError(err).Debug("broker: receive error")
			}
			continue
		}

		c.dispatchShielded(ctx, msg.Channel, []byte(msg.Payload))
	}
}

func isTimeout(err error) bool {
	return err == context.DeadlineExceeded
}

// dispatchShielded invokes onSubscribe, recovering a panic and logging any
// returned error so a single bad handler never kills the loop, matching
// osom_api/mq/client.py's shield_any wrapper.
func (c *Client) dispatchShielded(ctx context.Context, channel string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"channel": channel, "panic": r}).
				Error("broker: subscribe handler panicked")
		}
	}()

	if c.onSubscribe == nil {
		return
	}
	if err := c.onSubscribe(ctx, channel, data); err != nil {
		log.WithFields(log.Fields{"channel": channel}).WithError(err).
			Error("broker: subscribe handler failed")
	}
}

// Close runs onClosing, cancels the receive loop's context (which also
// aborts a pending receive), and waits up to closeTimeout for the loop to
// exit. If it has not exited by then, Close logs a warning and disconnects
// anyway rather than blocking shutdown indefinitely (spec.md §4.1 step 5 /
// §9 "Cancellation races on close").
func (c *Client) Close(ctx context.Context) error {
	if c.onClosing != nil {
		if err := c.onClosing(ctx); err != nil {
			log.WithError(err).Warn("broker: onClosing handler failed")
		}
	}

	if c.cancel == nil {
		return c.disconnect()
	}
	c.cancel()

	closeTimeout := c.cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 4 * time.Second
	}

	select {
	case <-c.closedCh:
	case <-time.After(closeTimeout):
		log.Warn("broker: subscriber did not stop within closeTimeout, forcing disconnect")
	}

	return c.disconnect()
}

func (c *Client) disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var closeErrs []error
	if c.pubsub != nil {
		if err := c.pubsub.Unsubscribe(context.Background(), c.channels...); err != nil {
			closeErrs = append(closeErrs, err)
		}
		if err := c.pubsub.Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	c.status.SetStatus(StatusDisconnected)
	if len(closeErrs) > 0 {
		return fmt.Errorf("broker: close errors: %v", closeErrs)
	}
	return nil
}

// Publish sends data on channel (fire-and-forget pub/sub).
func (c *Client) Publish(ctx context.Context, channel string, data []byte) error {
	return c.rdb.Publish(ctx, channel, data).Err()
}

// BlockingPopBytes blocks on key up to timeout, returning the popped bytes
// or (nil, false) on timeout (never an error — spec.md §4.1: "blockingPop
// returns null on timeout, not an error"). It pops from the right end, so
// together with LeftPushBytes the key behaves as a FIFO queue.
func (c *Client) BlockingPopBytes(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	result, err := c.rdb.BRPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, false, nil
	}
	return []byte(result[1]), true, nil
}

// LeftPushBytes pushes data onto key. If expiry > 0, the push and the
// expiration are applied as one pipelined round trip (spec.md §4.1: "the
// push and the expiration must be applied atomically").
func (c *Client) LeftPushBytes(ctx context.Context, key string, data []byte, expiry time.Duration) error {
	if expiry <= 0 {
		return c.rdb.LPush(ctx, key, data).Err()
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.Expire(ctx, key, expiry)
	_, err := pipe.Exec(ctx)
	return err
}

// Ping issues a standalone health probe, usable outside Open (e.g. for a
// master node's readiness endpoint).
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
