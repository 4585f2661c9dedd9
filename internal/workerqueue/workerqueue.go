// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerqueue submits a bounded batch of concurrent jobs and waits
// for all of them, the shape the linear directory scan's readahead needs:
// submit asynchronously, wait per consumed block.
package workerqueue

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run submits one job per item in work, bounded to at most limit
// concurrent, and blocks until every job has completed or one has failed.
// The first error is returned; remaining jobs still run to completion
// (errgroup's default behavior) since partially-issued readahead is
// harmless.
func Run(ctx context.Context, limit int, work []func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, job := range work {
		job := job
		g.Go(func() error {
			return job(ctx)
		})
	}
	return g.Wait()
}
