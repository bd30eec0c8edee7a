/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package transport defines how the broker reaches agents and provides a plain UDP implementation.
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the transport mode an agent is connected with.
type Mode string

// Transport modes.
const (
	// ModeUDP is an unreliable datagram mode. Requests must be acknowledged by the agent explicitly.
	ModeUDP Mode = "udp"
	// ModeTCP is a connection-oriented mode. Acknowledgment is implicit at the transport layer.
	ModeTCP Mode = "tcp"
)

// ParseMode converts a string into Mode (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeUDP, ModeTCP:
		return m, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q", s)
	}
}

// RequiresAck reports whether requests sent in this mode must be acknowledged by the agent.
func (m Mode) RequiresAck() bool {
	return m == ModeUDP
}

// Sender delivers a message to the agent.
type Sender interface {
	Send(ctx context.Context, agent string, msg []byte) error
}

// SenderFunc is an adapter to allow the use of ordinary functions as Sender.
type SenderFunc func(ctx context.Context, agent string, msg []byte) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, agent string, msg []byte) error {
	return f(ctx, agent, msg)
}

// ModeResolver tells which transport mode the agent is connected with.
type ModeResolver interface {
	Mode(ctx context.Context, agent string) Mode
}

// FixedMode is a ModeResolver that returns the same mode for every agent.
type FixedMode Mode

// Mode implements ModeResolver.
func (m FixedMode) Mode(_ context.Context, _ string) Mode {
	return Mode(m)
}

// AddressBook resolves the network address of the agent.
type AddressBook interface {
	Address(ctx context.Context, agent string) (string, error)
}

// StaticAddressBook is an AddressBook backed by a map.
type StaticAddressBook map[string]string

// Address implements AddressBook.
func (b StaticAddressBook) Address(_ context.Context, agent string) (string, error) {
	addr, ok := b[agent]
	if !ok {
		return "", fmt.Errorf("no address for agent %q", agent)
	}
	return addr, nil
}

// Handler processes control messages received from agents.
type Handler interface {
	HandleControlMessage(msg []byte)
}
