/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-reqbroker/correlation"
	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/wire"
)

const (
	minAcceptRetryDelay = time.Millisecond * 5
	maxAcceptRetryDelay = time.Second
)

var (
	errEmptyRequest    = errors.New("empty request")
	errRequestTooLarge = errors.New("request is too large")
	errStopping        = errors.New("broker is stopping")
)

// acceptLoop accepts client connections until the listener is closed.
// Other accept errors (e.g. running out of file descriptors) are logged and retried with a growing delay.
func (b *Broker) acceptLoop(ln net.Listener, logger log.FieldLogger) {
	var retryDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if b.listenCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if retryDelay == 0 {
				retryDelay = minAcceptRetryDelay
			} else {
				retryDelay = min(retryDelay*2, maxAcceptRetryDelay)
			}
			logger.Warn("accept error, retrying", log.Error(err), log.Duration("delay", retryDelay))
			select {
			case <-time.After(retryDelay):
			case <-b.listenCtx.Done():
				return
			}
			continue
		}
		retryDelay = 0
		b.handleConn(conn)
	}
}

// handleConn reads the client's request, registers it and, once a dispatch slot is acquired,
// hands it over to a new dispatcher goroutine.
// Waiting for the slot happens here, so a busy pool delays accepting of further connections.
func (b *Broker) handleConn(conn net.Conn) {
	startTime := time.Now()
	logger := b.Logger.With(log.String("conn_id", xid.New().String()))

	frame, err := b.readFrame(conn)
	if err != nil {
		b.rejectConn(conn, logger, startTime, fmt.Errorf("read request: %w", err))
		return
	}
	agent, body, err := wire.SplitClientRequest(frame)
	if err != nil {
		b.rejectConn(conn, logger, startTime, err)
		return
	}

	id := wire.FormatID(b.idCounter.Inc())
	logger = logger.With(log.String("request_id", id), log.String("agent", agent))

	entry := correlation.NewEntry(id, agent, conn, body)
	if err = b.table.Register(entry); err != nil {
		b.rejectConn(conn, logger, startTime, fmt.Errorf("register request: %w", err))
		return
	}
	b.Metrics.PendingRequests.Inc()

	if err = b.pool.Acquire(b.listenCtx, time.Duration(b.cfg.Timeouts.RequestWait)); err != nil {
		if removeErr := b.table.Remove(id); removeErr != nil {
			logger.Error("remove rejected request", log.Error(removeErr))
		} else {
			b.Metrics.PendingRequests.Dec()
		}
		b.rejectConn(conn, logger, startTime, fmt.Errorf("acquire dispatch slot: %w", err))
		return
	}
	b.Metrics.FreeSlots.Dec()

	logger.Debug("request admitted", log.Int("size", len(body)))
	b.dispatchers.Add(1)
	go b.dispatch(entry, logger, startTime)
}

// readFrame reads a single request frame. The client sends the whole frame with one write.
// Stop interrupts the read by moving the deadline of the connection being framed.
func (b *Broker) readFrame(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(time.Duration(b.cfg.Timeouts.Read))); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, errStopping
	}
	b.framingConn = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.framingConn = nil
		b.mu.Unlock()
	}()

	buf := make([]byte, int(b.cfg.Limits.MaxRequestSize)+1)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n == 0 {
		return nil, errEmptyRequest
	}
	if n > int(b.cfg.Limits.MaxRequestSize) {
		return nil, errRequestTooLarge
	}
	return buf[:n], nil
}

func (b *Broker) rejectConn(conn net.Conn, logger log.FieldLogger, startTime time.Time, err error) {
	logger.Warn("request rejected", log.Error(err))
	b.writeReply(conn, logger, []byte(replyForError(err)))
	if closeErr := conn.Close(); closeErr != nil {
		logger.Debug("close client connection", log.Error(closeErr))
	}
	b.Metrics.ObserveRequest(OutcomeInternalError, time.Since(startTime))
}

func (b *Broker) writeReply(conn net.Conn, logger log.FieldLogger, reply []byte) {
	if err := conn.SetWriteDeadline(time.Now().Add(time.Duration(b.cfg.Timeouts.Write))); err != nil {
		logger.Warn("set write deadline", log.Error(err))
	}
	n, err := conn.Write(reply)
	if err != nil {
		logger.Warn("write reply to client", log.Error(err), log.Int("written", n), log.Int("size", len(reply)))
		return
	}
	if n != len(reply) {
		logger.Warn("short write of reply to client", log.Int("written", n), log.Int("size", len(reply)))
	}
}
