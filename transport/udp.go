/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/service"
)

// ErrNotListening is returned by UDPTransport.Send when the socket is not bound yet or is already closed.
var ErrNotListening = errors.New("udp transport is not listening")

// ErrModeNotSupported is returned by UDPTransport.Send for agents connected in a mode other than ModeUDP.
var ErrModeNotSupported = errors.New("agent transport mode is not supported")

// UDPTransportOption is a functional option for UDPTransport.
type UDPTransportOption func(*UDPTransport)

// WithModeResolver makes UDPTransport refuse to send to agents that are not connected in ModeUDP.
func WithModeResolver(modes ModeResolver) UDPTransportOption {
	return func(t *UDPTransport) {
		t.modes = modes
	}
}

// UDPTransport exchanges plain datagrams with agents.
// Inbound datagrams are passed to the Handler, outbound ones are addressed via the AddressBook.
// It implements service.Worker, so it may be run as service.WorkerUnit.
type UDPTransport struct {
	Logger log.FieldLogger

	address         string
	maxDatagramSize int
	addressBook     AddressBook
	modes           ModeResolver

	mu      sync.RWMutex
	conn    *net.UDPConn
	handler Handler
}

var _ Sender = (*UDPTransport)(nil)
var _ service.Worker = (*UDPTransport)(nil)

// NewUDPTransport creates a new UDPTransport.
func NewUDPTransport(
	cfg *Config, addressBook AddressBook, logger log.FieldLogger, options ...UDPTransportOption,
) *UDPTransport {
	t := &UDPTransport{
		Logger:          logger,
		address:         cfg.UDP.Address,
		maxDatagramSize: int(cfg.UDP.MaxDatagramSize),
		addressBook:     addressBook,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// SetHandler sets the handler for inbound datagrams. It must be called before Run.
func (t *UDPTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Listen binds the UDP socket. Run calls it if the socket is not bound yet.
func (t *UDPTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", t.address)
	if err != nil {
		return fmt.Errorf("resolve udp address %q: %w", t.address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp %q: %w", t.address, err)
	}
	t.conn = conn
	return nil
}

// Addr returns the local address of the bound socket (nil if not listening).
func (t *UDPTransport) Addr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Send writes msg as a single datagram to the agent's address.
func (t *UDPTransport) Send(ctx context.Context, agent string, msg []byte) error {
	if t.modes != nil {
		if mode := t.modes.Mode(ctx, agent); mode != ModeUDP {
			return fmt.Errorf("%w: agent %q is connected via %s", ErrModeNotSupported, agent, mode)
		}
	}
	if len(msg) > t.maxDatagramSize {
		return fmt.Errorf("message of %d bytes exceeds max datagram size %d", len(msg), t.maxDatagramSize)
	}

	addr, err := t.addressBook.Address(ctx, agent)
	if err != nil {
		return fmt.Errorf("get address of agent %q: %w", agent, err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve address %q of agent %q: %w", addr, agent, err)
	}

	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotListening
	}

	n, err := conn.WriteToUDP(msg, udpAddr)
	if err != nil {
		return fmt.Errorf("write datagram to agent %q: %w", agent, err)
	}
	if n != len(msg) {
		return fmt.Errorf("short datagram write to agent %q: %d of %d bytes", agent, n, len(msg))
	}
	return nil
}

// Run reads inbound datagrams until the context is done.
func (t *UDPTransport) Run(ctx context.Context) error {
	if err := t.Listen(); err != nil {
		return err
	}

	t.mu.RLock()
	conn, handler := t.conn, t.handler
	t.mu.RUnlock()

	logger := t.Logger.With(log.String("address", conn.LocalAddr().String()))
	logger.Info("udp transport is reading datagrams...")

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
		}
		t.close()
	}()

	buf := make([]byte, t.maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("udp transport stopped")
				return nil
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		if n == 0 || handler == nil {
			continue
		}
		logger.Debug("datagram received", log.String("from", from.String()), log.Int("size", n))
		handler.HandleControlMessage(append([]byte(nil), buf[:n]...))
	}
}

func (t *UDPTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return
	}
	if err := t.conn.Close(); err != nil {
		t.Logger.Warn("close udp socket", log.Error(err))
	}
	t.conn = nil
}
