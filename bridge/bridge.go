// Package bridge glues two endpoints drawn from different interchanges
//: a local endpoint on one interchange and a HyperClient
// for the remote side, pumped in both directions.
package bridge

import (
	"context"
	"errors"

	"github.com/luxfi/hyperlane/hyperclient"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"
)

// Bridge owns a HyperClient for the remote side and a local endpoint;
// local rx flows to client tx, and client rx flows to local tx.
type Bridge struct {
	client *hyperclient.Client
	local  *hyperway.Endpoint

	cancel context.CancelFunc
	group  *errgroup.Group

	log log.Logger
}

// localSink feeds the local endpoint's received waves into the pump.
type localSink struct {
	ch   chan wave.Wave
	done <-chan struct{}
}

func (s *localSink) Send(w wave.Wave) error {
	select {
	case s.ch <- w:
		return nil
	case <-s.done:
		return errors.New("bridge closed")
	}
}

// New wires a Bridge between local and client and starts both pumps.
func New(client *hyperclient.Client, local *hyperway.Endpoint, logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	b := &Bridge{client: client, local: local, cancel: cancel, group: g, log: logger}

	localRecv := make(chan wave.Wave, 1024)
	local.AttachConsumer(&localSink{ch: localRecv, done: ctx.Done()})

	g.Go(func() error {
		for {
			select {
			case w := <-localRecv:
				if err := client.Send(ctx, w); err != nil {
					b.log.Warn("bridge: local->remote send failed", "error", err.Error())
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case w := <-client.Recv():
				if err := local.Send(ctx, w); err != nil {
					b.log.Warn("bridge: remote->local send failed", "error", err.Error())
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return b
}

// Reset passes through to the client, forcing a reconnect of the remote
// side while the local endpoint stays mounted.
func (b *Bridge) Reset() { b.client.Reset() }

// Status passes through the client's FSM state.
func (b *Bridge) Status() hyperclient.Status { return b.client.Status() }

// Close stops both pumps, closes the client, and drops the local endpoint.
func (b *Bridge) Close() {
	b.cancel()
	b.client.Close()
	b.local.Drop()
	_ = b.group.Wait()
}
