/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"errors"

	"github.com/acronis/go-reqbroker/correlation"
	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/wire"
)

// NotifyArrival passes the agent's reply (an acknowledgment or the response) to the request with the given identifier.
// It never waits for the dispatcher. correlation.ErrNotFound is returned
// if the request is already completed or has never been issued; such replies are dropped.
func (b *Broker) NotifyArrival(id string, data []byte) error {
	err := b.table.Update(id, data)
	if err == nil {
		return nil
	}
	if errors.Is(err, correlation.ErrNotFound) {
		b.Metrics.LateArrivalsTotal.Inc()
		b.logLateArrival(id, len(data))
	}
	return err
}

// HandleControlMessage decodes the request envelope received from an agent and calls NotifyArrival.
// Implements transport.Handler interface.
func (b *Broker) HandleControlMessage(msg []byte) {
	id, body, err := wire.DecodeRequest(msg)
	if err != nil {
		b.Logger.Debug("drop control message", log.Error(err), log.Int("size", len(msg)))
		return
	}
	_ = b.NotifyArrival(id, body)
}

func (b *Broker) logLateArrival(id string, size int) {
	b.Logger.Debug("reply for unknown request dropped", log.String("request_id", id), log.Int("size", size))
	if !b.lateArrivalLimiter.Allow() {
		b.suppressedLateArrival.Inc()
		return
	}
	b.Logger.Warn("reply for unknown request dropped",
		log.String("request_id", id), log.Int64("suppressed", b.suppressedLateArrival.Swap(0)))
}
