package flowcontext

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// Config holds the parameters of the intercom flows
type Config struct {
	// RetentionRounds is the number of rounds kept behind the current one.
	RetentionRounds externalapi.Round

	// MaxFutureRounds is how far beyond the current round broadcasts are
	// validated. Later ones only count towards catching up.
	MaxFutureRounds externalapi.Round

	// RoundTimeout is how long the round driver waits for a quorum of
	// points at the previous round before building with what it has.
	RoundTimeout time.Duration

	PayloadBatchBytes int
	IntakeQueueSize   int

	QueryTimeout         time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	PeerRequestsPerSecond float64
	PeerRequestBurst      int
}

// DefaultConfig returns the default flow parameters
func DefaultConfig() *Config {
	return &Config{
		RetentionRounds:       32,
		MaxFutureRounds:       2,
		RoundTimeout:          time.Second,
		PayloadBatchBytes:     256 * 1024,
		IntakeQueueSize:       1000,
		QueryTimeout:          5 * time.Second,
		RetryInitialInterval:  50 * time.Millisecond,
		RetryMaxInterval:      time.Second,
		PeerRequestsPerSecond: 500,
		PeerRequestBurst:      1000,
	}
}

// Validate checks that the parameters are usable
func (cfg *Config) Validate() error {
	if cfg.RetentionRounds < 4 {
		return errors.Errorf("retention rounds must be at least 4, got %d", cfg.RetentionRounds)
	}
	if cfg.MaxFutureRounds == 0 || cfg.MaxFutureRounds > cfg.RetentionRounds {
		return errors.Errorf("max future rounds must be in [1, %d], got %d", cfg.RetentionRounds, cfg.MaxFutureRounds)
	}
	if cfg.RoundTimeout <= 0 || cfg.QueryTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if cfg.RetryInitialInterval <= 0 || cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		return errors.New("retry intervals must be positive and ordered")
	}
	if cfg.PayloadBatchBytes <= 0 || cfg.IntakeQueueSize <= 0 {
		return errors.New("payload batch and intake queue sizes must be positive")
	}
	if cfg.PeerRequestsPerSecond <= 0 || cfg.PeerRequestBurst <= 0 {
		return errors.New("peer request limits must be positive")
	}
	return nil
}

// NewBackOff returns the schedule retried queries follow
func (cfg *Config) NewBackOff() backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = cfg.RetryInitialInterval
	exponential.MaxInterval = cfg.RetryMaxInterval
	exponential.Reset()
	return exponential
}

// RetryMaxElapsedTime is the longest a query is retried for: roughly the
// time a round stays in the window.
func (cfg *Config) RetryMaxElapsedTime() time.Duration {
	return time.Duration(cfg.RetentionRounds) * cfg.RoundTimeout
}
