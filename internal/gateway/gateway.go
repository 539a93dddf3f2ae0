// Package gateway wires together the listener, the Redis pub/sub client,
// and the fan-out table into a running server, coordinating their
// lifetimes with golang.org/x/sync/errgroup the way
// alanyoungcy-polymarketbot's internal/app does for its own worker
// goroutines (spec §9).
package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pepnova/wsgate/internal/conn"
	"github.com/pepnova/wsgate/internal/fanout"
	"github.com/pepnova/wsgate/internal/redispubsub"
	"github.com/pepnova/wsgate/internal/strpool"
)

// Options configures a Gateway.
type Options struct {
	BindAddr  string
	RedisAddr string
	TLSConfig *tls.Config // nil disables TLS
}

// Gateway owns the listener, the Redis client, the fan-out table, and the
// registry of live connections needed for an orderly shutdown.
type Gateway struct {
	log *slog.Logger
	opt Options

	table  *fanout.Table
	client *redispubsub.Client

	connsWG sync.WaitGroup

	// connsMu guards conns, the process-wide registry of live connections
	// (spec §3) that lets Run's shutdown path actively close every socket
	// instead of waiting out each connection's idle timeout (spec §4.9/§9:
	// "On exit, every registered H is destroyed").
	connsMu sync.Mutex
	conns   map[uint64]*conn.Conn
}

// New builds a Gateway without starting it.
func New(opt Options, log *slog.Logger) *Gateway {
	g := &Gateway{
		log:   log,
		opt:   opt,
		conns: make(map[uint64]*conn.Conn),
	}
	pool := strpool.New()
	g.client = redispubsub.New(redispubsub.Options{
		Addr:             opt.RedisAddr,
		OnSubscribeReply: g.onSubscribeReply,
		OnMessage:        g.onMessage,
	}, log)
	g.table = fanout.New(pool, g.client, log)
	return g
}

func (g *Gateway) onSubscribeReply(channel string)   { g.table.OnSubscribeReply(channel) }
func (g *Gateway) onMessage(channel, payload string) { g.table.OnMessage(channel, payload) }

// Run listens, accepts connections, and drives the Redis receive loop
// until ctx is cancelled, then waits for every open connection to close
// before returning (spec §9's graceful shutdown).
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.opt.BindAddr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	if g.opt.TLSConfig != nil {
		listener = tls.NewListener(listener, g.opt.TLSConfig)
	}
	defer listener.Close()
	g.log.Info("listening", "addr", listener.Addr().String(), "tls", g.opt.TLSConfig != nil)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		return g.client.Run(gctx)
	})

	grp.Go(func() error {
		<-gctx.Done()
		return listener.Close()
	})

	grp.Go(func() error {
		<-gctx.Done()
		g.closeAllConns()
		return nil
	})

	grp.Go(func() error {
		return g.acceptLoop(gctx, listener)
	})

	err = grp.Wait()
	g.closeClient()
	g.waitForConns()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (g *Gateway) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway: accept: %w", err)
		}
		c := conn.New(nc, g.table, g.log)
		g.registerConn(c)
		g.connsWG.Add(1)
		go func() {
			defer g.connsWG.Done()
			defer g.unregisterConn(c)
			c.Serve(ctx)
		}()
	}
}

func (g *Gateway) registerConn(c *conn.Conn) {
	g.connsMu.Lock()
	defer g.connsMu.Unlock()
	g.conns[c.ID()] = c
}

func (g *Gateway) unregisterConn(c *conn.Conn) {
	g.connsMu.Lock()
	defer g.connsMu.Unlock()
	delete(g.conns, c.ID())
}

// closeAllConns actively tears down every registered connection (spec §3,
// §4.9/§9) rather than relying on each connection's own idle-timeout read
// deadline to eventually notice ctx cancellation, which could otherwise
// stall shutdown by up to the 60 s inactivity timeout per live connection.
func (g *Gateway) closeAllConns() {
	g.connsMu.Lock()
	conns := make([]*conn.Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (g *Gateway) waitForConns() {
	g.connsWG.Wait()
}

func (g *Gateway) closeClient() {
	if err := g.client.Close(); err != nil {
		g.log.Warn("error closing redis client", "err", err)
	}
}
