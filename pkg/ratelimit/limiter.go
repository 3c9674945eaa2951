package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
)

// Names of the built-in limiters
const (
	Signup        = "signup"
	Login         = "login"
	PasswordReset = "password_reset"
	Comment       = "comment"
	Reaction      = "reaction"
	Cooked        = "cooked"
	Feedback      = "feedback"
)

var (
	// ErrInvalidConfig is returned for a limiter without a name, max or window
	ErrInvalidConfig = errors.New("ratelimit: invalid limiter config")

	// ErrUnknownLimiter is returned by Registry.Get for an unregistered name
	ErrUnknownLimiter = errors.New("ratelimit: unknown limiter")
)

// Config defines one named limiter
type Config struct {
	Name   string
	Max    int
	Window time.Duration
}

// Validate checks the config
func (c Config) Validate() error {
	if c.Name == "" || c.Max <= 0 || c.Window <= 0 {
		return fmt.Errorf("%w: %q max=%d window=%s", ErrInvalidConfig, c.Name, c.Max, c.Window)
	}
	return nil
}

// DefaultConfigs returns the thresholds of the built-in limiters
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		Signup:        {Name: Signup, Max: 5, Window: time.Hour},
		Login:         {Name: Login, Max: 5, Window: 15 * time.Minute},
		PasswordReset: {Name: PasswordReset, Max: 3, Window: time.Hour},
		Comment:       {Name: Comment, Max: 30, Window: time.Minute},
		Reaction:      {Name: Reaction, Max: 60, Window: time.Minute},
		Cooked:        {Name: Cooked, Max: 20, Window: time.Minute},
		Feedback:      {Name: Feedback, Max: 5, Window: time.Hour},
	}
}

// Decision is the outcome of a Check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts hits per key in fixed windows
type Limiter struct {
	cfg     Config
	counter Counter
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithMetrics records decisions and counter errors
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithClock overrides the time source used for RetryAfter
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter over a counter
func New(cfg Config, counter Counter, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		cfg:     cfg,
		counter: counter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.cfg.Name
}

// Config returns the limiter configuration
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check records a hit for key and reports whether it is within the limit.
// Counter failures are returned as errors; the caller decides whether to
// fail open or closed.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.counter.Incr(ctx, l.cfg.Name+":"+key, l.cfg.Window)
	if err != nil {
		l.metrics.RecordRateLimitError(l.cfg.Name)
		return Decision{}, fmt.Errorf("failed to check %s limit: %w", l.cfg.Name, err)
	}

	d := Decision{
		Allowed: count <= int64(l.cfg.Max),
		Limit:   l.cfg.Max,
		ResetAt: resetAt,
	}
	if remaining := int64(l.cfg.Max) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(l.now())
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}

	l.metrics.RecordRateLimit(l.cfg.Name, d.Allowed)
	return d, nil
}

// Registry holds named limiters sharing one counter
type Registry struct {
	limiters map[string]*Limiter
}

// NewRegistry builds one limiter per config
func NewRegistry(counter Counter, configs map[string]Config, opts ...Option) (*Registry, error) {
	r := &Registry{limiters: make(map[string]*Limiter, len(configs))}
	for name, cfg := range configs {
		if cfg.Name == "" {
			cfg.Name = name
		}
		l, err := New(cfg, counter, opts...)
		if err != nil {
			return nil, err
		}
		r.limiters[cfg.Name] = l
	}
	return r, nil
}

// Get returns the limiter registered under name
func (r *Registry) Get(name string) (*Limiter, error) {
	l, ok := r.limiters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLimiter, name)
	}
	return l, nil
}

// MustGet is Get for limiters wired at startup
func (r *Registry) MustGet(name string) *Limiter {
	l, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return l
}

// Names returns the registered limiter names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IPKey derives a limiter key from the client address
func IPKey(r *http.Request) string {
	return "ip:" + httputil.ClientIP(r)
}

// UserKey derives a limiter key from a user ID
func UserKey(userID string) string {
	return "user:" + userID
}
