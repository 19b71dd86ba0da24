package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Classifier resolves a face crop to (identity, confidence).
type Classifier interface {
	Classify(ctx context.Context, face image.Image) (string, float64, error)
}

type ReliabilityConfig struct {
	Name                string
	Attempts            uint
	CallTimeout         time.Duration
	MaxConsecutiveFails uint32
	OpenTimeout         time.Duration // how long the breaker stays open
	RateLimit           float64       // calls per second
	Burst               int
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:                "face-classifier",
		Attempts:            3,
		CallTimeout:         10 * time.Second,
		MaxConsecutiveFails: 5,
		OpenTimeout:         30 * time.Second,
		RateLimit:           100,
		Burst:               20,
	}
}

// StateObserver is told about breaker transitions, typically a metrics gauge.
type StateObserver func(name string, open bool)

// ReliableClassifier guards a Classifier with a rate limiter, a circuit
// breaker and retries.
type ReliableClassifier struct {
	next    Classifier
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

type classification struct {
	identity   string
	confidence float64
}

func NewReliableClassifier(next Classifier, cfg ReliabilityConfig, observe StateObserver) *ReliableClassifier {
	def := DefaultReliabilityConfig()
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxConsecutiveFails == 0 {
		cfg.MaxConsecutiveFails = def.MaxConsecutiveFails
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.MaxConsecutiveFails
		},
	}
	if observe != nil {
		settings.OnStateChange = func(name string, _, to gobreaker.State) {
			observe(name, to == gobreaker.StateOpen)
		}
	}

	return &ReliableClassifier{
		next:    next,
		cfg:     cfg,
		cb:      gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

func (w *ReliableClassifier) Classify(ctx context.Context, face image.Image) (string, float64, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var last classification
	res, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			id, conf, callErr := w.next.Classify(tCtx, face)
			if callErr != nil {
				return callErr
			}
			last = classification{identity: id, confidence: conf}
			return nil
		})
		return last, retryErr
	})
	if err != nil {
		return "", 0, err
	}
	c := res.(classification)
	return c.identity, c.confidence, nil
}

// State reports the breaker state, for health endpoints.
func (w *ReliableClassifier) State() string {
	return w.cb.State().String()
}
