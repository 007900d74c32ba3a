// Package daemon wires the wire codec and the routing table to real
// UDP sockets: one reader goroutine per configured input port feeding
// a shared datagramQueue, and a single dispatcher goroutine draining
// that queue into rib.Table.ApplyAdvertisement, so every mutation of
// the table is serialized through the table's own mutex regardless of
// which socket a datagram arrived on.
package daemon

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ellacalder/cosc364-rip-assignment/config"
	"github.com/ellacalder/cosc364-rip-assignment/metrics"
	"github.com/ellacalder/cosc364-rip-assignment/rib"
	"github.com/ellacalder/cosc364-rip-assignment/wire"
)

// Daemon owns the listening sockets, the inbound datagram queue, and
// the routing table for one router process.
type Daemon struct {
	cfg     *config.Config
	table   *rib.Table
	queue   *datagramQueue
	conns   []*net.UDPConn
	logger  zerolog.Logger
	metrics *metrics.Collector

	wg sync.WaitGroup
}

// New binds one UDP socket per cfg.Inputs on the loopback interface
// and builds a routing table that sends outbound advertisements over
// the first of those sockets.
func New(cfg *config.Config, logger zerolog.Logger, mc *metrics.Collector) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		queue:   newDatagramQueue(),
		logger:  logger,
		metrics: mc,
	}

	for _, port := range cfg.Inputs {
		addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			d.closeConns()
			return nil, fmt.Errorf("daemon: bind input port %d: %w", port, err)
		}
		d.conns = append(d.conns, conn)
	}

	d.table = rib.New(cfg.RouterID, cfg.Outputs, &udpTransport{conn: d.conns[0]}, rib.Options{
		Logger:  logger,
		Metrics: mc,
	})

	return d, nil
}

func (d *Daemon) closeConns() {
	for _, c := range d.conns {
		c.Close()
	}
}

// Table returns the daemon's routing table, for callers (such as this
// package's tests) that want to render or inspect it without reaching
// into daemon internals.
func (d *Daemon) Table() *rib.Table {
	return d.table
}

// Run starts the reader and dispatcher goroutines and blocks until ctx
// is cancelled, at which point it closes every socket and waits for
// those goroutines to exit.
func (d *Daemon) Run(ctx context.Context) error {
	for _, conn := range d.conns {
		d.wg.Add(1)
		go d.readLoop(conn)
	}

	d.wg.Add(1)
	go d.dispatchLoop()

	<-ctx.Done()

	d.closeConns()
	d.queue.Close()
	d.wg.Wait()
	return ctx.Err()
}

func (d *Daemon) readLoop(conn *net.UDPConn) {
	defer d.wg.Done()
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed by Run's shutdown path
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		d.queue.Push(datagram{from: addr.String(), payload: payload})
	}
}

func (d *Daemon) dispatchLoop() {
	defer d.wg.Done()
	for {
		dg, ok := d.queue.Pop()
		if !ok {
			return
		}
		senderID, entries, err := wire.Decode(dg.payload)
		if err != nil {
			d.logger.Warn().Err(err).Str("from", dg.from).Msg("dropping undecodable datagram")
			d.incrDecodeError()
			continue
		}
		d.table.ApplyAdvertisement(uint32(senderID), entries)
	}
}

func (d *Daemon) incrDecodeError() {
	if d.metrics != nil {
		d.metrics.DecodeErrors.Inc()
	}
}

// udpTransport implements rib.Transport by sending advertisements out
// of the daemon's first listening socket. RIP speaks over
// connectionless UDP, so any bound socket may send; using the first
// matches this implementation's single-process, single-source-port
// behavior.
type udpTransport struct {
	conn *net.UDPConn
}

func (u *udpTransport) Send(neighbor config.Neighbor, frame []byte) error {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(neighbor.SendPort)}
	_, err := u.conn.WriteToUDP(frame, addr)
	return err
}
