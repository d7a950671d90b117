package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond

	// maxSuggestedTimeout caps the timeout suggestion for TimeoutError.
	maxSuggestedTimeout = 30 * time.Second
)

// Context describes where an error surfaced.
type Context struct {
	// Service names the dependency involved, matching its breaker name.
	Service string
	// Operation names the failed operation, for logs.
	Operation string
	// Timeout is the deadline the operation ran under, if any. Drives
	// the suggested timeout for TimeoutError.
	Timeout time.Duration
}

// Outcome is the result of handling one error.
type Outcome struct {
	// Handled is true once the error was classified and recorded.
	Handled bool
	// Recovered is true when a recovery action or a retry succeeded.
	Recovered bool
	// ShouldAlert flags that this error type crossed its alert line.
	ShouldAlert bool
	// Result holds the retry's return value when a retry succeeded.
	Result any
	// Err carries the original error when it was not recovered, so the
	// caller can re-raise with the original failure semantics.
	Err error
	// SuggestedTimeout is a recommended new deadline for TimeoutError.
	SuggestedTimeout time.Duration
	// Record is the history entry created for this error.
	Record *Record
}

// Action attempts to remediate one error type. A nil return marks the
// record recovered.
type Action func(ctx context.Context, rec *Record) error

// RetryFunc re-runs the failed operation.
type RetryFunc func(ctx context.Context) (any, error)

// Prober checks reachability of a named dependency for the built-in
// connection recovery.
type Prober func(ctx context.Context, service string) error

type coordinatorOptions struct {
	logger          *slog.Logger
	maxRetries      int
	baseDelay       time.Duration
	historyLimit    int
	retention       time.Duration
	alertThresholds map[string]float64
	probe           Prober
	now             func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxRetries sets the default retry budget.
func WithMaxRetries(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; each retry doubles it.
func WithBaseDelay(d time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithHistoryLimit caps the error history size.
func WithHistoryLimit(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithRetention sets the maximum record age.
func WithRetention(d time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithAlertThresholds overrides per-type alert rates, in errors per
// minute.
func WithAlertThresholds(thresholds map[string]float64) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.alertThresholds = thresholds
	}
}

// WithProbe wires the reconnection probe used for ConnectionError.
func WithProbe(p Prober) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.probe = p
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Coordinator routes caught errors through classification, recovery,
// retry and alerting. Construct one per process and share it.
type Coordinator struct {
	mu       sync.RWMutex
	actions  map[string]Action
	breakers map[string]*breaker.Breaker

	hist   *history
	alerts *alertPolicy
	logger *slog.Logger
	probe  Prober

	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
}

// New builds a Coordinator.
func New(opts ...CoordinatorOption) *Coordinator {
	o := &coordinatorOptions{
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Coordinator{
		actions:    make(map[string]Action),
		breakers:   make(map[string]*breaker.Breaker),
		hist:       newHistory(o.historyLimit, o.retention, o.now),
		alerts:     newAlertPolicy(o.alertThresholds),
		logger:     o.logger,
		probe:      o.probe,
		maxRetries: o.maxRetries,
		baseDelay:  o.baseDelay,
		now:        o.now,
	}
}

// Register installs a recovery action for an error type. Called once at
// startup; a later call for the same type replaces the action.
func (c *Coordinator) Register(errType string, action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if action == nil {
		delete(c.actions, errType)
		return
	}
	c.actions[errType] = action
}

// RegisterBreaker makes a dependency's breaker visible to the built-in
// connection recovery, which skips probing while the breaker is open.
func (c *Coordinator) RegisterBreaker(name string, b *breaker.Breaker) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakers[name] = b
}

// HandleError processes one caught error. retryFn may be nil; when it
// is set and recovery fails, the operation is retried up to maxRetries
// times with exponential backoff (maxRetries <= 0 uses the default).
// The first successful retry short-circuits into Outcome.Result;
// exhaustion surfaces the original error in Outcome.Err.
func (c *Coordinator) HandleError(ctx context.Context, cause error, info Context, retryFn RetryFunc, maxRetries int) Outcome {
	if cause == nil {
		return Outcome{Err: ErrNilError}
	}

	errType := Classify(cause)
	rec, occurrences := c.hist.append(errType, cause.Error(), info.Service, info.Operation)

	severity := severityFor(errType, occurrences)
	c.logger.Log(ctx, severity, "error captured",
		slog.String("error_type", errType),
		slog.String("error", cause.Error()),
		slog.String("service", info.Service),
		slog.String("operation", info.Operation),
		slog.Uint64("occurrences", occurrences))

	out := Outcome{Handled: true, Record: rec}
	rec.Handled = true

	c.recover(ctx, info, rec, &out)

	// Validation and other unrecoverable causes are never retried, and
	// retrying into an open breaker only feeds the rejection path.
	if !rec.Recovered && retryFn != nil && !breaker.IsOpen(cause) && retry.IsRecoverable(cause) {
		c.retry(ctx, info, rec, &out, retryFn, maxRetries)
	}

	if !rec.Recovered && out.Result == nil {
		out.Err = cause
	}
	out.Recovered = rec.Recovered
	c.hist.markOutcome(rec)

	recent := c.hist.countSince(errType, c.now().Add(-alertWindow))
	out.ShouldAlert = c.alerts.shouldAlert(errType, recent, c.hist.lifetime(errType))
	if out.ShouldAlert {
		c.logger.Error("error rate alert",
			slog.String("error_type", errType),
			slog.Int("recent_count", recent),
			slog.Uint64("lifetime_count", c.hist.lifetime(errType)))
	}

	return out
}

// recover runs the registered action for the error type, falling back
// to the built-in defaults for connection and timeout errors.
func (c *Coordinator) recover(ctx context.Context, info Context, rec *Record, out *Outcome) {
	c.mu.RLock()
	action := c.actions[rec.Type]
	c.mu.RUnlock()

	if action != nil {
		if err := action(ctx, rec); err != nil {
			c.logger.Warn("recovery action failed",
				slog.String("error_type", rec.Type),
				slog.String("error", err.Error()))
			return
		}
		rec.Recovered = true
		rec.RecoveryAction = "registered"
		return
	}

	switch rec.Type {
	case TypeConnection:
		c.reconnect(ctx, info, rec)
	case TypeTimeout:
		out.SuggestedTimeout = suggestTimeout(info.Timeout)
		rec.RecoveryAction = "timeout_adjustment"
	}
}

// reconnect probes the failed dependency. The probe is skipped while
// the dependency's breaker is open: a probe would only feed the failure
// count the breaker already acted on.
func (c *Coordinator) reconnect(ctx context.Context, info Context, rec *Record) {
	rec.RecoveryAction = "reconnect_probe"
	if c.probe == nil || info.Service == "" {
		return
	}

	c.mu.RLock()
	b := c.breakers[info.Service]
	c.mu.RUnlock()
	if b != nil && b.State() == gobreaker.StateOpen {
		c.logger.Debug("reconnection probe skipped, breaker open",
			slog.String("service", info.Service))
		return
	}

	if err := c.probe(ctx, info.Service); err != nil {
		c.logger.Warn("reconnection probe failed",
			slog.String("service", info.Service),
			slog.String("error", err.Error()))
		return
	}
	rec.Recovered = true
}

// retry re-runs the operation with exponential backoff. Attempt n waits
// baseDelay * 2^(n-1), so the defaults give 0.1s, 0.2s, 0.4s.
func (c *Coordinator) retry(ctx context.Context, info Context, rec *Record, out *Outcome, retryFn RetryFunc, maxRetries int) {
	if maxRetries <= 0 {
		maxRetries = c.maxRetries
	}
	rec.Retried = true

	base := c.baseDelay
	result, err := retry.NewWithData[any](
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)),
		retry.Delay(base),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			if n == 0 {
				n = 1
			}
			return base << (n - 1)
		}),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && !breaker.IsOpen(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying operation",
				slog.String("operation", info.Operation),
				slog.Uint64("attempt", uint64(n)+1),
				slog.String("error", err.Error()))
		}),
		retry.LastErrorOnly(true),
	).Do(func() (any, error) {
		return retryFn(ctx)
	})
	if err != nil {
		c.logger.Warn("retries exhausted",
			slog.String("operation", info.Operation),
			slog.Int("attempts", maxRetries),
			slog.String("error", err.Error()))
		return
	}

	rec.Recovered = true
	out.Result = result
}

// suggestTimeout recommends the next deadline after a timeout: half
// again the current one, capped at maxSuggestedTimeout.
func suggestTimeout(current time.Duration) time.Duration {
	if current <= 0 {
		return maxSuggestedTimeout
	}
	suggested := current + current/2
	if suggested > maxSuggestedTimeout {
		return maxSuggestedTimeout
	}
	return suggested
}

// Stats summarizes the error history.
type Stats struct {
	Total     int               `json:"total"`
	ByType    map[string]uint64 `json:"by_type"`
	Recovered uint64            `json:"recovered"`
	Retried   uint64            `json:"retried"`
}

// Stats reports history totals. ByType counts are lifetime counts and
// survive record eviction.
func (c *Coordinator) Stats() Stats {
	recovered, retried := c.hist.tallies()
	return Stats{
		Total:     c.hist.size(),
		ByType:    c.hist.countsByType(),
		Recovered: recovered,
		Retried:   retried,
	}
}

// Recent returns copies of the records captured within d of now.
func (c *Coordinator) Recent(d time.Duration) []Record {
	cutoff := c.now().Add(-d)
	all := c.hist.snapshot()
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if !rec.Time.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
