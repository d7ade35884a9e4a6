package nntp

import (
	"errors"
	"strconv"
)

// ErrPoolBusy indicates every connection at the current failover level is
// leased; the scheduler should back off and retry later rather than treat
// it as a download failure.
var ErrPoolBusy = errors.New("nntp: all connections busy")

// ErrNoServers indicates the pool has no active server configured at all,
// or none at the requested level.
var ErrNoServers = errors.New("nntp: no servers configured at this level")

// ConnectError wraps a transient connection/authentication/protocol failure
// (dial failures, timeouts, 400/499 responses). It never advances an
// article's failover level; only its connect-retry budget is spent.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return "nntp: connect error on " + e.Server + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// NotFoundError wraps a permanent 411/412/423/430 response: the group or
// article does not exist on this server. It advances the article's
// failover level.
type NotFoundError struct {
	Server  string
	Code    int
	Context string // "group" or "article"
}

func (e *NotFoundError) Error() string {
	return "nntp: " + e.Context + " not found (" + e.Server + ", code " + strconv.Itoa(e.Code) + ")"
}

// FailedError wraps any other 4xx response that is neither a recognized
// connect failure nor a not-found. Reported under its own kind so operators
// can tell protocol confusion apart from plain network trouble.
type FailedError struct {
	Server string
	Code   int
	Line   string
}

func (e *FailedError) Error() string {
	return "nntp: unexpected response " + strconv.Itoa(e.Code) + " from " + e.Server + ": " + e.Line
}
