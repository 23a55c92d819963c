package pending

import (
	"time"

	"github.com/compose-network/radiolink/x/executor"
	"github.com/rs/zerolog"
)

const DefaultMaxHistory = 256

// Config contains all dependencies for Registry.
type Config struct {
	Logger zerolog.Logger

	// Executor delivers envelopes unless a request names its own.
	Executor executor.Executor

	// TimerFactory creates per-request timers for caller-set timeouts.
	TimerFactory TimerFactory

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time

	// MaxHistory bounds the completed-request log; 0 disables it.
	MaxHistory int

	// OnFinalize is called once per request, after the history entry is
	// recorded and before its envelope is posted.
	OnFinalize func(Completed)
}

// DefaultConfig returns a config with sensible defaults for optional fields.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Logger:       logger.With().Str("component", "request-registry").Logger(),
		Executor:     executor.Go{Log: logger},
		TimerFactory: SystemTimerFactory{},
		Now:          time.Now,
		MaxHistory:   DefaultMaxHistory,
	}
}
