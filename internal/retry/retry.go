// Package retry implements an exponential-backoff executor with jitter and
// a textual error classifier for distinguishing transient backend failures
// (worth retrying) from permanent ones (fail fast).
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// ErrCancelled is returned when ctx is done before or during a retry sleep.
// Execute returns it wrapped with ctx.Err() so callers can still inspect the
// underlying cause with errors.Is/errors.As.
var ErrCancelled = errors.New("retry: cancelled")

// Class categorizes an error for retry purposes.
type Class int

const (
	// Transient errors are worth retrying: network blips, timeouts,
	// temporary backend unavailability.
	Transient Class = iota
	// Permanent errors will not be fixed by retrying: auth failures,
	// missing resources, conflicts.
	Permanent
)

var transientSignatures = []string{
	"network", "timeout", "connection", "temporarily", "503", "502", "504", "eof",
}

var permanentSignatures = []string{
	"auth", "permission", "401", "403", "not found", "conflict",
}

// Classify inspects err's message for known substrings and returns its
// class. Permanent signatures are checked first so "auth ... timeout"-style
// messages don't get misread as transient. Unknown errors default to
// Transient: the backend is an opaque subprocess and a conservative
// classifier retries rather than giving up on an error it doesn't recognize.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}

	msg := strings.ToLower(err.Error())

	for _, sig := range permanentSignatures {
		if strings.Contains(msg, sig) {
			return Permanent
		}
	}

	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return Transient
		}
	}

	return Transient
}

// Policy is an exponential-backoff retry executor.
type Policy struct {
	// MaxAttempts is the maximum number of times Execute calls op (≥1).
	MaxAttempts int

	// BaseDelay is the initial backoff delay, doubled on each subsequent
	// attempt and capped at CapDelay.
	BaseDelay time.Duration

	// CapDelay is the maximum backoff delay between attempts.
	CapDelay time.Duration

	// Verbose, if set, routes a one-line notice to this func before every
	// retry sleep. Nil disables notices.
	Verbose func(attempt int, err error, sleep time.Duration)

	// rand is overridable in tests so jitter is deterministic.
	rand func() float64
}

// New returns a Policy with the given bounds. maxAttempts, baseDelay, and
// capDelay must all be positive; New panics otherwise since a
// misconfigured policy (e.g. zero attempts) silently defeats retrying.
func New(maxAttempts int, baseDelay, capDelay time.Duration) *Policy {
	if maxAttempts < 1 {
		panic("retry: maxAttempts must be >= 1")
	}
	if baseDelay <= 0 || capDelay <= 0 {
		panic("retry: baseDelay and capDelay must be > 0")
	}

	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		CapDelay:    capDelay,
		rand:        rand.Float64,
	}
}

// Execute invokes op up to MaxAttempts times. Between attempts it sleeps
// min(BaseDelay*2^attempt, CapDelay) plus up to ±20% jitter. A Permanent
// error (per Classify) is returned immediately without further attempts. ctx
// is checked before each attempt and during sleeps; if it is done, Execute
// returns an error satisfying errors.Is(err, ErrCancelled).
func (p *Policy) Execute(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrCancelled, err)
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if Classify(lastErr) == Permanent {
			return lastErr
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		sleep := p.delayFor(attempt)
		if p.Verbose != nil {
			p.Verbose(attempt+1, lastErr, sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

func (p *Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay << attempt
	if delay <= 0 || delay > p.CapDelay {
		delay = p.CapDelay
	}

	jitter := 1 + (p.randFloat()*2-1)*0.2
	scaled := time.Duration(float64(delay) * jitter)
	if scaled < 0 {
		scaled = 0
	}

	return scaled
}

func (p *Policy) randFloat() float64 {
	if p.rand == nil {
		return rand.Float64()
	}
	return p.rand()
}
