package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
)

// ErrGateBusy is returned when the gate stays held past the wait budget.
var ErrGateBusy = errors.New("submission gate busy")

// GateConfig tunes the distributed submission gate.
type GateConfig struct {
	Key string
	// TTL is refreshed every TTL/2 while the gate is held, so it only has
	// to outlive a stalled holder, not the slowest submission.
	TTL time.Duration
	// Wait bounds how long Acquire retries before giving up.
	Wait  time.Duration
	Retry time.Duration
}

// DefaultGateConfig returns sensible settings for a single signing key.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Key:   "fraudledger:submission-gate",
		TTL:   2 * time.Minute,
		Wait:  5 * time.Minute,
		Retry: 100 * time.Millisecond,
	}
}

// Gate is a redislock-backed mutex shared by every process that signs with
// the same ledger key, so nonces and entry indexes stay ordered.
type Gate struct {
	locker *redislock.Client
	cfg    GateConfig
}

// NewGate creates a gate over client.
func NewGate(client goredis.UniversalClient, cfg GateConfig) *Gate {
	def := DefaultGateConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.Retry <= 0 {
		cfg.Retry = def.Retry
	}
	return &Gate{locker: redislock.New(client), cfg: cfg}
}

// Acquire blocks until the gate is held, ctx ends or the wait budget runs out.
func (g *Gate) Acquire(ctx context.Context) (func(context.Context) error, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.Wait)
	defer cancel()

	lock, err := g.locker.Obtain(waitCtx, g.cfg.Key, g.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(g.cfg.Retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrGateBusy, g.cfg.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtaining %s: %w", g.cfg.Key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.keepAlive(lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done

		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("gate %s expired before release", g.cfg.Key)
		}
		return err
	}, nil
}

// keepAlive extends the lock until stop is closed or the lock is lost.
func (g *Gate) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.cfg.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.TTL/2)
			err := lock.Refresh(ctx, g.cfg.TTL, nil)
			cancel()
			if errors.Is(err, redislock.ErrNotObtained) {
				return
			}
		}
	}
}
