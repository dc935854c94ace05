// Copyright 2024 Google LLC
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

package workload

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/googlecloudplatform/threadpool/internal/locker"
	"github.com/googlecloudplatform/threadpool/internal/workerpool"
)

// Summary is a snapshot of a workload run.
type Summary struct {
	RunID     string
	Elapsed   time.Duration
	Submitted int64
	Rejected  int64
	Succeeded int64
	Failed    int64
	Panicked  int64
	Removed   int64
	Discarded int64
}

// Finished returns the number of submitted tasks whose handles completed.
func (s Summary) Finished() int64 {
	return s.Succeeded + s.Failed + s.Panicked + s.Removed + s.Discarded
}

// Write prints the summary in a human readable form.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"run %s finished in %v\n"+
			"  submitted: %d (rejected: %d)\n"+
			"  succeeded: %d\n"+
			"  failed:    %d\n"+
			"  panicked:  %d\n"+
			"  removed:   %d\n"+
			"  discarded: %d\n",
		s.RunID, s.Elapsed.Round(time.Millisecond),
		s.Submitted, s.Rejected,
		s.Succeeded, s.Failed, s.Panicked, s.Removed, s.Discarded)
	return err
}

// Report accumulates the results of a run. Producers record submissions and
// outcomes concurrently while the caller may read snapshots.
type Report struct {
	runID string

	mu locker.RWLocker

	// INVARIANT: summary.Finished() <= summary.Submitted
	//
	// GUARDED_BY(mu)
	summary Summary
}

func newReport(runID string) *Report {
	r := &Report{
		runID:   runID,
		summary: Summary{RunID: runID},
	}
	r.mu = locker.NewRW("WorkloadReport", r.checkInvariants)
	return r
}

// LOCKS_REQUIRED(r.mu)
func (r *Report) checkInvariants() {
	if r.summary.Finished() > r.summary.Submitted {
		panic(fmt.Sprintf("report counts %d finished tasks but only %d submitted", r.summary.Finished(), r.summary.Submitted))
	}
}

// LOCKS_EXCLUDED(r.mu)
func (r *Report) recordSubmit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.summary.Rejected++
		return
	}
	r.summary.Submitted++
}

// LOCKS_EXCLUDED(r.mu)
func (r *Report) recordOutcome(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var panicErr *workerpool.PanicError
	switch {
	case err == nil:
		r.summary.Succeeded++
	case errors.As(err, &panicErr):
		r.summary.Panicked++
	case errors.Is(err, workerpool.ErrTaskRemoved):
		r.summary.Removed++
	case errors.Is(err, workerpool.ErrTaskDiscarded):
		r.summary.Discarded++
	default:
		r.summary.Failed++
	}
}

// LOCKS_EXCLUDED(r.mu)
func (r *Report) setElapsed(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Elapsed = d
}

// Snapshot returns the counts recorded so far.
//
// LOCKS_EXCLUDED(r.mu)
func (r *Report) Snapshot() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.summary
}
