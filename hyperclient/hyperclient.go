// Package hyperclient implements the reconnecting client:
// a runner task that dials an EndpointFactory with retry/backoff, consumes
// the endpoint bidirectionally, watches for the greeting Pong, and
// classifies wire failures into Panic (reconnect) or Fatal (terminate).
package hyperclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/exchange"
	"github.com/luxfi/hyperlane/gate"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Status is the client FSM state.
type Status uint8

const (
	Unknown Status = iota
	Pending
	Connecting
	Handshake
	Auth
	Ready
	Panic
	Fatal
	Closed
)

var statusNames = [...]string{"Unknown", "Pending", "Connecting", "Handshake", "Auth", "Ready", "Panic", "Fatal", "Closed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// Terminal reports whether the runner has exited for good.
func (s Status) Terminal() bool { return s == Fatal || s == Closed }

const (
	createTimeout    = 30 * time.Second
	retryWaitInitial = time.Second
	retryWaitMax     = 15 * time.Second
	retryWaitAfter   = 10 // attempts before the wait extends to retryWaitMax
)

// Client maintains a reconnecting connection to a remote gate via an
// injected EndpointFactory.
type Client struct {
	factory gate.EndpointFactory

	sendCh chan wave.Wave
	recvCh chan wave.Wave

	statusMu sync.Mutex
	status   Status
	statusCh chan Status // single watcher

	greetMu sync.Mutex
	greet   *gate.Greet
	greetCh chan struct{}

	exchMu sync.Mutex
	exch   *exchange.Exchanger

	resetCh chan struct{}
	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once

	log log.Logger
}

// New builds a Client and starts its runner.
func New(factory gate.EndpointFactory, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	c := &Client{
		factory:  factory,
		sendCh:   make(chan wave.Wave, 1024),
		recvCh:   make(chan wave.Wave, 1024),
		statusCh: make(chan Status, 16),
		greetCh:  make(chan struct{}),
		resetCh:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logger,
	}
	c.setStatus(Pending)
	go c.run()
	return c
}

// SetExchanger installs e; once set, reflected waves are routed to it for
// correlation rather than emitted on Recv.
func (c *Client) SetExchanger(e *exchange.Exchanger) {
	c.exchMu.Lock()
	c.exch = e
	c.exchMu.Unlock()
}

func (c *Client) exchanger() *exchange.Exchanger {
	c.exchMu.Lock()
	defer c.exchMu.Unlock()
	return c.exch
}

// Status reports the current FSM state.
func (c *Client) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// StatusWatch returns the single watcher channel of FSM transitions.
func (c *Client) StatusWatch() <-chan Status { return c.statusCh }

func (c *Client) setStatus(s Status) {
	c.statusMu.Lock()
	if c.status.Terminal() {
		c.statusMu.Unlock()
		return
	}
	c.status = s
	c.statusMu.Unlock()
	select {
	case c.statusCh <- s:
	default:
	}
}

// WaitForGreet blocks until the greeting Pong arrives or ctx expires.
func (c *Client) WaitForGreet(ctx context.Context) (gate.Greet, error) {
	select {
	case <-c.greetCh:
		c.greetMu.Lock()
		defer c.greetMu.Unlock()
		return *c.greet, nil
	case <-c.doneCh:
		return gate.Greet{}, errs.Wrap(errs.Transport, errors.New("hyperclient: runner terminated before greet"))
	case <-ctx.Done():
		return gate.Greet{}, errs.Wrap(errs.Timeout, ctx.Err())
	}
}

func (c *Client) setGreet(g gate.Greet) {
	c.greetMu.Lock()
	first := c.greet == nil
	c.greet = &g
	c.greetMu.Unlock()
	if first {
		close(c.greetCh)
	}
}

// Send wraps w in Transport (to the greet's transport anchor) then Hop (to
// the greet's hop anchor) and hands it to the runner, matching the peer's
// expected ingress shape.
func (c *Client) Send(ctx context.Context, w wave.Wave) error {
	greet, err := c.WaitForGreet(ctx)
	if err != nil {
		return err
	}
	transport := wave.WrapTransport(w, greet.Surface, greet.Transport)
	hop := wave.WrapHop(transport, greet.Surface, greet.Hop)
	select {
	case c.sendCh <- hop:
		return nil
	case <-c.closeCh:
		return errs.Wrap(errs.Transport, errs.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the client-facing receive channel. Reflected waves are
// absent here once an exchanger is installed.
func (c *Client) Recv() <-chan wave.Wave { return c.recvCh }

// Reset forces the runner to abandon its endpoint and reconnect; in-flight
// waves on the abandoned endpoint are lost.
func (c *Client) Reset() {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// Close terminates the runner; the client emits Closed and exits.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closeCh) })
}

// epSink bridges a Hyperlane consumer into the runner's receive channel,
// failing (and thereby detaching) once the endpoint is abandoned.
type epSink struct {
	ch   chan wave.Wave
	done chan struct{}
}

func (s *epSink) Send(w wave.Wave) error {
	select {
	case s.ch <- w:
		return nil
	case <-s.done:
		return errors.New("endpoint abandoned")
	}
}

// run is the runner loop.
func (c *Client) run() {
	defer close(c.doneCh)
	for {
		c.setStatus(Connecting)
		ep, ok := c.createWithRetry()
		if !ok {
			c.setStatus(Closed)
			return
		}
		c.setStatus(Handshake)

		abandoned := make(chan struct{})
		epRecv := make(chan wave.Wave, 1024)
		ep.AttachConsumer(&epSink{ch: epRecv, done: abandoned})
		c.setStatus(Auth)

		again := c.consume(ep, epRecv)
		close(abandoned)
		ep.Drop()
		if !again {
			return
		}
		c.setStatus(Panic)
	}
}

// createWithRetry calls factory.Create with a 30-second ceiling per
// attempt, waiting 1s between attempts (15s after 10 retries), until
// success or Close. The false return means the client closed.
func (c *Client) createWithRetry() (*hyperway.Endpoint, bool) {
	attempt := 0
	for {
		select {
		case <-c.closeCh:
			return nil, false
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
		ep, err := c.factory.Create(ctx)
		cancel()
		if err == nil {
			return ep, true
		}
		attempt++
		wait := retryWaitInitial
		if attempt > retryWaitAfter {
			wait = retryWaitMax
		}
		c.log.Debug("hyperclient: create failed, retrying", "attempt", attempt, "wait", wait.String(), "error", err.Error())
		select {
		case <-time.After(wait):
		case <-c.closeCh:
			return nil, false
		}
	}
}

// consume pumps both directions until reset (true: reconnect), close, or a
// fatal greet classification (false: terminate).
func (c *Client) consume(ep *hyperway.Endpoint, epRecv <-chan wave.Wave) (again bool) {
	greeted := false
	for {
		select {
		case w := <-c.sendCh:
			if err := ep.Send(context.Background(), w); err != nil {
				c.log.Warn("hyperclient: endpoint send failed, reconnecting", "error", err.Error())
				return true
			}
		case w := <-epRecv:
			if !greeted && w.Variant().Reflects() {
				greeted = true
				if !c.handleGreet(w) {
					c.setStatus(Fatal)
					return false
				}
				continue
			}
			if w.Variant().Reflects() {
				if e := c.exchanger(); e != nil {
					if !e.Reflect(w) {
						c.log.Debug("hyperclient: reflection matches no open exchange", "wave", w.ID.String())
					}
					continue
				}
			}
			select {
			case c.recvCh <- w:
			default:
				c.log.Warn("hyperclient: recv channel full, dropping wave", "wave", w.ID.String())
			}
		case <-c.resetCh:
			c.log.Debug("hyperclient: reset requested")
			return true
		case <-c.closeCh:
			c.setStatus(Closed)
			return false
		}
	}
}

// handleGreet processes the first reflected wave, which must be the
// greeting Pong. A non-200 status maps to a fixed classification:
// 400/401/403/301 are Fatal (false); 408/503 are Panic and
// trigger a reconnect by way of a synthetic reset.
func (c *Client) handleGreet(w wave.Wave) bool {
	if w.Status != 200 {
		switch w.Status {
		case 408, 503:
			c.log.Warn("hyperclient: greet deferred, reconnecting", "status", w.Status)
			c.Reset()
			return true
		default:
			c.log.Error("hyperclient: greet refused", "status", w.Status)
			return false
		}
	}
	g, ok := w.Core.Body.(gate.Greet)
	if !ok {
		c.log.Error("hyperclient: greet pong carries no greet body")
		return false
	}
	c.setGreet(g)
	c.setStatus(Ready)
	return true
}
