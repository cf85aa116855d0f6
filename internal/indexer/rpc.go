package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sony/gobreaker"

	"github.com/coldbell/vault/backend/internal/config"
)

// RPC is the subset of *rpc.Client the indexer reads through.
type RPC interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
}

// guardedRPC retries failed calls with capped exponential backoff and stops
// calling out while the breaker is open.
type guardedRPC struct {
	rpc        RPC
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

func newGuardedRPC(client RPC, cfg config.IndexerConfig, logger *slog.Logger) *guardedRPC {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "solana-rpc",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				logger.Warn("rpc seems down, stop allowing requests", "breaker", name)
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				logger.Info("checking rpc status", "breaker", name)
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				logger.Info("rpc seems ok, restart allowing requests", "breaker", name)
			}
		},
	})
	return &guardedRPC{
		rpc:        client,
		breaker:    breaker,
		maxRetries: cfg.RPCMaxRetries,
		baseDelay:  cfg.RPCRetryBaseDelay,
		maxDelay:   cfg.RPCRetryMaxDelay,
		logger:     logger,
	}
}

func (g *guardedRPC) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return call(ctx, g, "getSlot", func(ctx context.Context) (uint64, error) {
		return g.rpc.GetSlot(ctx, commitment)
	})
}

func (g *guardedRPC) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	return call(ctx, g, "getProgramAccounts", func(ctx context.Context) (rpc.GetProgramAccountsResult, error) {
		return g.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
	})
}

func (g *guardedRPC) GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error) {
	return call(ctx, g, "getMultipleAccounts", func(ctx context.Context) (*rpc.GetMultipleAccountsResult, error) {
		return g.rpc.GetMultipleAccountsWithOpts(ctx, accounts, opts)
	})
}

func call[T any](ctx context.Context, g *guardedRPC, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var delay time.Duration
	for attempt := 0; ; attempt++ {
		result, err := g.breaker.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err == nil {
			return result.(T), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", method, err)
		}
		if ctx.Err() != nil || attempt >= g.maxRetries {
			return zero, fmt.Errorf("%s: %w", method, err)
		}

		delay = nextBackoff(delay, g.baseDelay, g.maxDelay)
		g.logger.Warn("rpc call failed, retrying", "method", method, "attempt", attempt+1, "delay", delay.String(), "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w", method, ctx.Err())
		case <-timer.C:
		}
	}
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	if floor <= 0 {
		floor = 250 * time.Millisecond
	}
	if ceiling < floor {
		ceiling = floor
	}
	if current < floor {
		return floor
	}
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
