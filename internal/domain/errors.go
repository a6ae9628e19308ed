package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failure taxonomy for exchange calls. Every adapter call is classified into
// one of three buckets:
//
//   - TransientError: rate limit or request timeout. Retried locally inside
//     the exchange service after sleeping the exchange's rate-limit window.
//   - DisablingError: bad credentials, structural rejection, insufficient
//     funds. Never retried; the owner (credential, strategy, subscription)
//     gets disabled.
//   - PostponingError: maintenance window or elevated latency. The owning
//     entity's next_refresh is pushed forward by a fixed delay, the entity
//     stays active.
//
// Anything unclassified is treated conservatively as disabling.

type TransientError struct {
	Wait    time.Duration // how long to sleep before the retry
	Timeout bool          // request timeout rather than rate limit
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error (wait %s): %v", e.Wait, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type DisablingError struct {
	Reason string
	Err    error
}

func (e *DisablingError) Error() string {
	return fmt.Sprintf("disabling error: %s: %v", e.Reason, e.Err)
}

func (e *DisablingError) Unwrap() error { return e.Err }

type PostponingError struct {
	Reason string
	Err    error
}

func (e *PostponingError) Error() string {
	return fmt.Sprintf("postponing error: %s: %v", e.Reason, e.Err)
}

func (e *PostponingError) Unwrap() error { return e.Err }

func AsTransient(err error) (*TransientError, bool) {
	var t *TransientError
	ok := errors.As(err, &t)
	return t, ok
}

func IsDisabling(err error) bool {
	var d *DisablingError
	return errors.As(err, &d)
}

func IsPostponing(err error) bool {
	var p *PostponingError
	return errors.As(err, &p)
}
