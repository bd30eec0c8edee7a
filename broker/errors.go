/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"errors"
)

// Terminal errors of a dispatched request.
var (
	ErrSendFailed       = errors.New("cannot send request")
	ErrAttemptsExceeded = errors.New("maximum attempts exceeded")
	ErrResponseTimeout  = errors.New("response timeout")
	ErrShutdown         = errors.New("broker is shutting down")
)

// Replies written to the local client when a request fails.
const (
	ReplyInternalError    = "err Internal error"
	ReplySendFailed       = "err Cannot send request"
	ReplyAttemptsExceeded = "err Maximum attempts exceeded"
	ReplyResponseTimeout  = "err Response timeout"
)

// Outcome is a final state of a request. It's used as a metrics label.
type Outcome string

// Request outcomes.
const (
	OutcomeSuccess          Outcome = "success"
	OutcomeInternalError    Outcome = "internal_error"
	OutcomeSendFailed       Outcome = "send_failed"
	OutcomeAttemptsExceeded Outcome = "attempts_exceeded"
	OutcomeResponseTimeout  Outcome = "response_timeout"
)

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrSendFailed):
		return OutcomeSendFailed
	case errors.Is(err, ErrAttemptsExceeded):
		return OutcomeAttemptsExceeded
	case errors.Is(err, ErrResponseTimeout):
		return OutcomeResponseTimeout
	default:
		return OutcomeInternalError
	}
}

// replyForError maps the terminal error of a request to exactly one reply string.
func replyForError(err error) string {
	switch outcomeOf(err) {
	case OutcomeSendFailed:
		return ReplySendFailed
	case OutcomeAttemptsExceeded:
		return ReplyAttemptsExceeded
	case OutcomeResponseTimeout:
		return ReplyResponseTimeout
	default:
		return ReplyInternalError
	}
}
