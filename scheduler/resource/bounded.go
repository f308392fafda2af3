// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/errors"
	"golang.org/x/sync/semaphore"
)

// Bounded is a resource that can be held n times concurrently.
type Bounded struct {
	n   int
	sem *semaphore.Weighted
}

// NewBounded creates a new bounded resource that can be acquired n times
// concurrently. It can be acquired once if n is less than 1.
func NewBounded(n int) *Bounded {
	n = max(n, 1)
	return &Bounded{
		n:   n,
		sem: semaphore.NewWeighted(int64(n)),
	}
}

// Acquire acquires the resource. If the resource is already acquired n times,
// wait until another one is released or ctx is done.
// The resource is not acquired if an error is returned.
func (r *Bounded) Acquire(ctx context.Context) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		log.Trace().
			Str("action", "Bounded.Acquire()").
			Int("limit", r.n).
			Err(err).
			Msg("Resource not acquired.")
		return errors.E(err, "acquiring resource")
	}
	return nil
}

// Release a previously acquired resource.
func (r *Bounded) Release() {
	r.sem.Release(1)
}
