package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dermd/internal/model"
)

// Result is what a successful strategy produces.
type Result struct {
	Handle model.Handle
	// Labels embedded in the artifact metadata, if any.
	Labels []string
	// Degraded marks a handle whose predictions carry no training signal.
	Degraded bool
	Format   model.Format
	Notes    []string
}

// Strategy is one way of turning an artifact path into a model.
type Strategy interface {
	Name() string
	Load(ctx context.Context, path string) (Result, error)
}

// Outcome of a single attempt.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// Attempt records one strategy run.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Notes    []string      `json:"notes,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Chain runs strategies in order and stops at the first success.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
	// OnAttempt, when set, observes each attempt as soon as it completes.
	OnAttempt func(Attempt)
}

// NewChain builds a chain over strategies in the given order.
func NewChain(log zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: log}
}

// Strategies returns the strategy names in execution order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run folds over the strategies. It returns the first successful result with
// every attempt made so far, or an AllStrategiesExhausted error.
func (c *Chain) Run(ctx context.Context, path string) (Result, []Attempt, error) {
	attempts := make([]Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, attempts, fmt.Errorf("load %s: %w", path, err)
		}
		start := time.Now()
		res, err := c.try(ctx, s, path)
		a := Attempt{Strategy: s.Name(), Notes: res.Notes, Duration: time.Since(start)}
		if err != nil {
			a.Outcome = Failure
			a.Reason = err.Error()
			attempts = append(attempts, a)
			c.log.Warn().Str("strategy", a.Strategy).Str("path", path).Err(LoadStrategyFailed(a.Strategy, err)).Msg("load_attempt")
			c.observe(a)
			continue
		}
		a.Outcome = Success
		attempts = append(attempts, a)
		c.log.Info().Str("strategy", a.Strategy).Str("path", path).Bool("degraded", res.Degraded).
			Strs("notes", res.Notes).Dur("dur", a.Duration).Msg("load_attempt")
		c.observe(a)
		return res, attempts, nil
	}
	return Result{}, attempts, exhaustedError{attempts: attempts}
}

func (c *Chain) try(ctx context.Context, s Strategy, path string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = s.Load(ctx, path)
	if err == nil && res.Handle == nil {
		err = errors.New("strategy returned no model")
	}
	return res, err
}

func (c *Chain) observe(a Attempt) {
	if c.OnAttempt != nil {
		c.OnAttempt(a)
	}
}
