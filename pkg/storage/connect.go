package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConnectOptions controls how Connect waits for Redis.
type ConnectOptions struct {
	Addr           string
	Password       string
	DB             int
	DialTimeout    time.Duration
	ConnectTimeout time.Duration // total time allowed for all attempts
	RetryInterval  time.Duration // first wait, doubled after each failure
	MaxWait        time.Duration // cap for the wait between attempts
	PingTimeout    time.Duration
	WarnThreshold  int // attempts logged as warnings before switching to errors
}

// DefaultConnectOptions returns options suitable for service startup.
func DefaultConnectOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    5 * time.Second,
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  500 * time.Millisecond,
		MaxWait:        5 * time.Second,
		PingTimeout:    2 * time.Second,
		WarnThreshold:  3,
	}
}

func (o ConnectOptions) validate() error {
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	}
	return nil
}

// Connect creates a Redis client and pings it until it answers or
// ConnectTimeout passes. The wait between attempts grows exponentially.
func Connect(ctx context.Context, opts ConnectOptions, logger zerolog.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	logger.Info().
		Str("addr", opts.Addr).
		Dur("timeout", opts.ConnectTimeout).
		Msg("Connecting to Redis")

	start := time.Now()
	wait := opts.RetryInterval

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			event := logger.Info()
			if attempt > 1 {
				event = logger.Warn()
			}
			event.
				Str("addr", opts.Addr).
				Int("attempts", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("Connected to Redis")
			return client, nil
		}

		retryEvent := logger.Warn()
		if attempt > opts.WarnThreshold {
			retryEvent = logger.Error()
		}
		retryEvent.
			Err(err).
			Str("addr", opts.Addr).
			Int("attempt", attempt).
			Dur("next_retry_in", wait).
			Msg("Redis connection failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = client.Close()
			logger.Error().
				Err(err).
				Str("addr", opts.Addr).
				Int("attempts", attempt).
				Msg("Redis unavailable")
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-timer.C:
		}

		wait *= 2
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}
