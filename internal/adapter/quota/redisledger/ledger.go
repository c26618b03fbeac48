// Package redisledger tracks per-session completion counts and override
// levels in Redis. Counters only advance on completed jobs, so a crashed or
// failed generation never consumes budget.
package redisledger

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Ledger implements domain.QuotaLedger on a Redis client.
type Ledger struct{ rdb *redis.Client }

// New constructs a Ledger with the given client.
func New(rdb *redis.Client) *Ledger { return &Ledger{rdb: rdb} }

// NewClient builds a go-redis client for the given address and database.
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

func usedKey(sessionID string, kind domain.Kind) string {
	return fmt.Sprintf("quota:%s:%s", sessionID, kind)
}

func overrideKey(sessionID string) string {
	return fmt.Sprintf("override:%s", sessionID)
}

// Snapshot reads the completed count for a kind and the session override
// level in one round trip. Missing keys read as zero.
func (l *Ledger) Snapshot(ctx domain.Context, sessionID string, kind domain.Kind) (int, int, error) {
	pipe := l.rdb.Pipeline()
	usedCmd := pipe.Get(ctx, usedKey(sessionID, kind))
	overrideCmd := pipe.Get(ctx, overrideKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("op=quota.snapshot: %w", err)
	}
	used, err := intOrZero(usedCmd)
	if err != nil {
		return 0, 0, fmt.Errorf("op=quota.snapshot used: %w", err)
	}
	override, err := intOrZero(overrideCmd)
	if err != nil {
		return 0, 0, fmt.Errorf("op=quota.snapshot override: %w", err)
	}
	return used, override, nil
}

// IncrCompleted advances the completed count for a kind by one.
func (l *Ledger) IncrCompleted(ctx domain.Context, sessionID string, kind domain.Kind) error {
	if err := l.rdb.Incr(ctx, usedKey(sessionID, kind)).Err(); err != nil {
		return fmt.Errorf("op=quota.incr: %w", err)
	}
	return nil
}

// SetOverrideLevel records the session override level. Negative levels are
// stored as zero.
func (l *Ledger) SetOverrideLevel(ctx domain.Context, sessionID string, level int) error {
	if level < 0 {
		level = 0
	}
	if err := l.rdb.Set(ctx, overrideKey(sessionID), level, 0).Err(); err != nil {
		return fmt.Errorf("op=quota.set_override: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness checks.
func (l *Ledger) Ping(ctx domain.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=quota.ping: %w", err)
	}
	return nil
}

func intOrZero(cmd *redis.StringCmd) (int, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}
