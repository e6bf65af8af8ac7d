package retry

import (
	"carepulse/app/config"
	"carepulse/app/util/apperr"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeExhausted
	OutcomePermanent
)

type Result struct {
	Outcome Outcome
	Output  string
	Err     error
}

type Config struct {
	MaxAttempts    int
	QuickDelay     time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		QuickDelay:     cfg.Retry.QuickDelay,
		BaseDelay:      time.Second,
		MaxDelay:       cfg.Retry.MaxDelay,
		RateLimitDelay: cfg.Retry.RateLimitDelay,
	}
}

// Delay returns the backoff ladder value for the given retry number:
// a quick first recheck, then exponential growth capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return c.QuickDelay
	}

	d := c.BaseDelay << (attempt - 1)
	if d > c.MaxDelay {
		return c.MaxDelay
	}

	return d
}

// NoticeSink is where the coordinator posts its user-visible retry
// status. Implementations must replace, never stack: RemoveRetryNotices
// is called before every AppendRetryNotice.
type NoticeSink interface {
	RemoveRetryNotices()
	AppendRetryNotice(wait time.Duration, attempt, maxAttempts int)
}

type CallFunc func(ctx context.Context) (string, error)

// Coordinator drives one logical backend request through the backoff
// ladder. Terminal states are success, exhausted and permanent failure;
// at most one retry timer is pending at any time, and Cancel stops the
// sequence for good.
type Coordinator struct {
	cfg  Config
	call CallFunc
	sink NoticeSink
	done func(Result)

	mu        sync.Mutex
	token     string
	attempt   int
	timer     *time.Timer
	cancelled bool
	finished  bool
}

func NewCoordinator(cfg Config, sink NoticeSink, call CallFunc, done func(Result)) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		call:  call,
		sink:  sink,
		done:  done,
		token: uuid.NewString(),
	}
}

// Token correlates every attempt of this sequence; a fresh top-level
// request gets a fresh coordinator and therefore a fresh token.
func (c *Coordinator) Token() string {
	return c.token
}

func (c *Coordinator) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attempt
}

func (c *Coordinator) Start(ctx context.Context) {
	go c.attemptOnce(ctx)
}

// Cancel clears any pending retry timer and marks the sequence dead.
// A call already in flight will find the flag on resolution and stop
// without mutating anything.
func (c *Coordinator) Cancel() {
	c.mu.Lock()

	c.cancelled = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.mu.Unlock()

	c.sink.RemoveRetryNotices()
}

func (c *Coordinator) attemptOnce(ctx context.Context) {
	c.mu.Lock()
	if c.cancelled || c.finished {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	output, err := c.call(ctx)

	c.mu.Lock()
	if c.cancelled || c.finished {
		c.mu.Unlock()
		return
	}

	if err == nil {
		c.finished = true
		c.mu.Unlock()

		c.sink.RemoveRetryNotices()
		c.done(Result{Outcome: OutcomeSuccess, Output: output})
		return
	}

	kind := apperr.KindOf(err)

	switch kind {
	case apperr.KindCancelled:
		c.finished = true
		c.mu.Unlock()
		return

	case apperr.KindAuth:
		c.finished = true
		c.mu.Unlock()

		c.sink.RemoveRetryNotices()
		c.done(Result{Outcome: OutcomePermanent, Err: err})
		return
	}

	c.attempt++

	if c.attempt > c.cfg.MaxAttempts {
		c.finished = true
		c.mu.Unlock()

		c.sink.RemoveRetryNotices()
		c.done(Result{Outcome: OutcomeExhausted, Err: err})
		return
	}

	attempt := c.attempt
	delay := c.delayFor(kind, attempt)
	c.mu.Unlock()

	slog.Debug("Backend call failed, scheduling retry",
		"token", c.token,
		"kind", kind.String(),
		"attempt", attempt,
		"delay", delay,
		"error", err)

	c.sink.RemoveRetryNotices()
	c.sink.AppendRetryNotice(delay, attempt, c.cfg.MaxAttempts)

	c.mu.Lock()
	if c.cancelled || c.finished {
		c.mu.Unlock()
		return
	}
	c.timer = time.AfterFunc(delay, func() {
		c.attemptOnce(ctx)
	})
	c.mu.Unlock()
}

// Rate-limited requests sit out a distinct fixed cooldown instead of the
// generic ladder, but still consume the same attempt budget.
func (c *Coordinator) delayFor(kind apperr.Kind, attempt int) time.Duration {
	if kind == apperr.KindRateLimit {
		return c.cfg.RateLimitDelay
	}

	return c.cfg.Delay(attempt)
}
