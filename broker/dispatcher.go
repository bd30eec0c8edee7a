/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-reqbroker/correlation"
	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/retry"
	"github.com/acronis/go-reqbroker/transport"
	"github.com/acronis/go-reqbroker/wire"
)

var errNoAck = errors.New("no acknowledgment within retransmission timeout")

// dispatch drives a single admitted request to its final reply.
// Whatever happens, the entry is removed, the client connection is closed and the slot is released.
func (b *Broker) dispatch(entry *correlation.Entry, logger log.FieldLogger, startTime time.Time) {
	defer b.dispatchers.Done()

	mode := b.modes.Mode(b.ctx, entry.Agent())
	logger = logger.With(log.String("mode", string(mode)))

	resp, err := b.exchange(b.ctx, entry, mode, logger)
	if err == nil {
		if mode.RequiresAck() {
			if ackErr := b.sender.Send(b.ctx, entry.Agent(), wire.EncodeAck(entry.ID())); ackErr != nil {
				logger.Warn("send acknowledgment of response to agent", log.Error(ackErr))
			}
		}
		b.writeReply(entry.Conn(), logger, resp)
	} else {
		b.writeReply(entry.Conn(), logger, []byte(replyForError(err)))
	}

	outcome := outcomeOf(err)
	duration := time.Since(startTime)
	b.Metrics.ObserveRequest(outcome, duration)

	b.finish(entry, logger)

	if err != nil {
		logger.Warn("request failed", log.Error(err), log.String("outcome", string(outcome)),
			log.DurationIn(duration, time.Millisecond))
		return
	}
	logger.Info("request completed", log.Int("response_size", len(resp)),
		log.DurationIn(duration, time.Millisecond))
}

func (b *Broker) finish(entry *correlation.Entry, logger log.FieldLogger) {
	if err := b.table.Remove(entry.ID()); err != nil {
		logger.Error("remove completed request", log.Error(err))
	} else {
		b.Metrics.PendingRequests.Dec()
	}
	if err := entry.Conn().Close(); err != nil {
		logger.Debug("close client connection", log.Error(err))
	}
	if b.pool.Release() {
		b.Metrics.FreeSlots.Inc()
	} else {
		logger.Error("dispatch slot was already released")
	}
}

// exchange sends the request to the agent and waits for its response.
func (b *Broker) exchange(
	ctx context.Context, entry *correlation.Entry, mode transport.Mode, logger log.FieldLogger,
) ([]byte, error) {
	msg := wire.EncodeRequest(entry.ID(), entry.Drain())
	_, seq := entry.Snapshot()

	var data []byte
	received := false
	if mode.RequiresAck() {
		var err error
		if data, seq, err = b.sendUntilAcked(ctx, entry, msg, seq, logger); err != nil {
			return nil, err
		}
		received = true
	} else if err := b.send(ctx, entry, msg); err != nil {
		return nil, err
	}

	return b.awaitResponse(ctx, entry, data, seq, received)
}

func (b *Broker) send(ctx context.Context, entry *correlation.Entry, msg []byte) error {
	if err := b.sender.Send(ctx, entry.Agent(), msg); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// sendUntilAcked sends the envelope and waits for any reply from the agent within the retransmission timeout.
// The identical envelope is sent again on every timeout, MaxAttempts times in total.
func (b *Broker) sendUntilAcked(
	ctx context.Context, entry *correlation.Entry, msg []byte, seq uint64, logger log.FieldLogger,
) (data []byte, newSeq uint64, err error) {
	rto := b.cfg.Retransmission.Timeout()
	attempt := 0

	isRetryable := func(err error) bool { return errors.Is(err, errNoAck) }
	notify := func(err error, _ time.Duration) {
		b.Metrics.RetransmissionsTotal.Inc()
		logger.Debug("retransmitting request", log.Int("attempt", attempt+1))
	}

	err = retry.DoWithRetry(ctx, retry.NewAttemptsPolicy(b.cfg.MaxAttempts), isRetryable, notify,
		func(ctx context.Context) error {
			attempt++
			if sendErr := b.send(ctx, entry, msg); sendErr != nil {
				return sendErr
			}
			got, gotSeq, ok := entry.Wait(ctx, rto, seq)
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errNoAck
			}
			data, newSeq = got, gotSeq
			return nil
		})
	switch {
	case err == nil:
		return data, newSeq, nil
	case errors.Is(err, errNoAck):
		return nil, seq, fmt.Errorf("%w: %d attempts", ErrAttemptsExceeded, attempt)
	case ctx.Err() != nil:
		return nil, seq, fmt.Errorf("%w: %w", ErrShutdown, err)
	default:
		return nil, seq, err
	}
}

// awaitResponse waits until the entry holds something other than a bare acknowledgment.
// Every acknowledgment restarts the response deadline, but no more than MaxAttempts waits are made.
func (b *Broker) awaitResponse(
	ctx context.Context, entry *correlation.Entry, data []byte, seq uint64, received bool,
) ([]byte, error) {
	timeout := time.Duration(b.cfg.Timeouts.Response)
	for waits := 0; !received || wire.IsAck(data); waits++ {
		if waits == b.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w: %d acknowledgments without response", ErrResponseTimeout, waits)
		}
		var ok bool
		if data, seq, ok = entry.Wait(ctx, timeout, seq); !ok {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrShutdown, ctx.Err())
			}
			return nil, fmt.Errorf("%w: no reply within %s", ErrResponseTimeout, timeout)
		}
		received = true
	}
	return data, nil
}
