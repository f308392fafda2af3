// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package resource_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/scheduler/resource"
)

func TestBoundedLimitsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3

	var (
		r       resource.R = resource.NewBounded(limit)
		wg      sync.WaitGroup
		running atomic.Int32
		maxSeen atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer r.Release()

			n := running.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			running.Add(-1)
		}()
	}
	wg.Wait()

	assert.IsTrue(t, maxSeen.Load() <= limit, "max concurrency %d", maxSeen.Load())
}

func TestBoundedAcquireCanceled(t *testing.T) {
	t.Parallel()

	r := resource.NewBounded(0)
	assert.NoError(t, r.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Acquire(ctx)
	assert.IsTrue(t, err != nil, "acquired a busy resource with a canceled context")
	assert.IsTrue(t, errors.Is(err, context.Canceled))

	r.Release()
	assert.NoError(t, r.Acquire(context.Background()))
}
