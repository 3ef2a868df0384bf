package ratelimit

import (
	"time"

	"github.com/sirupsen/logrus"

	"whatsingest/internal/constants"
)

// Limiter combines a sliding-window request throttle with an
// exponential backoff state machine. It guards a single client instance
// against its provider's per-minute quota; it is not a distributed
// limiter and is not safe for concurrent use.
type Limiter struct {
	maxPerMinute int
	window       []time.Time
	backoff      time.Duration
	maxBackoff   time.Duration
	logger       *logrus.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter allowing maxPerMinute requests in any trailing
// 60-second window.
func New(maxPerMinute int, logger *logrus.Logger) *Limiter {
	if maxPerMinute <= 0 {
		maxPerMinute = constants.DefaultRateLimitPerMinute
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Limiter{
		maxPerMinute: maxPerMinute,
		backoff:      constants.InitialBackoffSec * time.Second,
		maxBackoff:   constants.MaxBackoffSec * time.Second,
		logger:       logger,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// WaitIfNeeded blocks until issuing a request would stay inside the
// window, then records the request. After it returns the window holds
// no entry older than 60 seconds.
func (l *Limiter) WaitIfNeeded() {
	l.prune(l.now())

	if len(l.window) >= l.maxPerMinute {
		oldest := l.window[0]
		wait := constants.RateLimitWindowSec*time.Second - l.now().Sub(oldest)
		if wait > 0 {
			l.logger.WithFields(logrus.Fields{
				"wait":   wait.Seconds(),
				"window": len(l.window),
			}).Info("Rate limit reached, waiting")
			l.sleep(wait)
		}
		l.prune(l.now())
	}

	l.window = append(l.window, l.now())
}

// HandleRateLimitError blocks for the current backoff, then doubles it
// up to the cap. Called when the provider answers 429.
func (l *Limiter) HandleRateLimitError() {
	l.logger.WithField("backoff", l.backoff.Seconds()).Warn("Rate limit error, backing off")
	l.sleep(l.backoff)

	l.backoff *= 2
	if l.backoff > l.maxBackoff {
		l.backoff = l.maxBackoff
	}
}

// ResetBackoff restores the initial backoff after any request that did
// not hit a rate limit.
func (l *Limiter) ResetBackoff() {
	l.backoff = constants.InitialBackoffSec * time.Second
}

// Backoff exposes the current backoff value for introspection.
func (l *Limiter) Backoff() time.Duration {
	return l.backoff
}

// SetSleep replaces the blocking function. Tests use it to record waits
// instead of sleeping through them.
func (l *Limiter) SetSleep(sleep func(time.Duration)) {
	l.sleep = sleep
}

// WindowLen reports how many requests the trailing window holds.
func (l *Limiter) WindowLen() int {
	return len(l.window)
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-constants.RateLimitWindowSec * time.Second)
	kept := l.window[:0]
	for _, t := range l.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.window = kept
}
