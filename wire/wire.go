/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package wire encodes and decodes the messages exchanged by the broker with local clients and agents.
//
// A local client sends "<agent> <body>" over its connection.
// Requests to agents are wrapped into the control envelope "#!-req <id> <body>",
// and the agent echoes the identifier back in its acknowledgment ("#!-req <id> ack") and response.
package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// Envelope parts.
const (
	ControlHeader = "#!-"
	RequestMarker = "req "
	AckMarker     = "ack"
)

const requestPrefix = ControlHeader + RequestMarker

// Decoding errors.
var (
	ErrMalformedRequest  = errors.New("malformed client request")
	ErrMalformedEnvelope = errors.New("malformed request envelope")
)

// FormatID renders the counter value as a fixed-width identifier.
func FormatID(counter uint32) string {
	return fmt.Sprintf("%08x", counter)
}

// EncodeRequest wraps body into the request envelope.
func EncodeRequest(id string, body []byte) []byte {
	msg := make([]byte, 0, len(requestPrefix)+len(id)+1+len(body))
	msg = append(msg, requestPrefix...)
	msg = append(msg, id...)
	msg = append(msg, ' ')
	return append(msg, body...)
}

// EncodeAck builds the acknowledgment envelope telling the agent its response was received.
func EncodeAck(id string) []byte {
	return EncodeRequest(id, []byte(AckMarker))
}

// IsAck reports whether the agent's reply is a bare acknowledgment.
func IsAck(data []byte) bool {
	return string(data) == AckMarker
}

// IsRequestEnvelope reports whether msg starts with the request envelope prefix.
func IsRequestEnvelope(msg []byte) bool {
	return bytes.HasPrefix(msg, []byte(requestPrefix))
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(msg []byte) (id string, body []byte, err error) {
	if !IsRequestEnvelope(msg) {
		return "", nil, fmt.Errorf("%w: no %q prefix", ErrMalformedEnvelope, requestPrefix)
	}
	rest := msg[len(requestPrefix):]
	sep := bytes.IndexByte(rest, ' ')
	if sep <= 0 {
		return "", nil, fmt.Errorf("%w: no identifier", ErrMalformedEnvelope)
	}
	return string(rest[:sep]), rest[sep+1:], nil
}

// SplitClientRequest splits the local client's frame into the target agent and the request body
// on the first space.
func SplitClientRequest(frame []byte) (agent string, body []byte, err error) {
	sep := bytes.IndexByte(frame, ' ')
	if sep < 0 {
		return "", nil, fmt.Errorf("%w: no separator", ErrMalformedRequest)
	}
	if sep == 0 {
		return "", nil, fmt.Errorf("%w: empty agent", ErrMalformedRequest)
	}
	return string(frame[:sep]), frame[sep+1:], nil
}
