package app

import (
	"context"
	"fmt"

	"github.com/craftlab/cardsmith/internal/adapter/httpserver"
)

// Pinger is the minimal interface for a backing store capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db, redis, and blob store probes for the
// readiness endpoint. A nil dependency yields a check that always fails,
// keeping a misconfigured process out of rotation.
func BuildReadinessChecks(db, redis, blob Pinger) (dbCheck, redisCheck, blobCheck httpserver.CheckFunc) {
	probe := func(name string, p Pinger) httpserver.CheckFunc {
		return func(ctx context.Context) error {
			if p == nil {
				return fmt.Errorf("%s not configured", name)
			}
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("op=readiness.%s: %w", name, err)
			}
			return nil
		}
	}
	return probe("db", db), probe("redis", redis), probe("blob", blob)
}
