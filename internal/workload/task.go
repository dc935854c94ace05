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
	"math/rand/v2"
	"time"

	"github.com/googlecloudplatform/threadpool/internal/workerpool"
)

var errSynthetic = errors.New("synthetic task failure")

// sleepTask simulates a unit of work by sleeping, and then fails or panics
// as it was told to at creation.
type sleepTask struct {
	duration time.Duration
	fail     bool
	panic    bool
}

var _ workerpool.Task = (*sleepTask)(nil)

func (t *sleepTask) Execute() error {
	if t.duration > 0 {
		time.Sleep(t.duration)
	}
	if t.panic {
		panic("synthetic task panic")
	}
	if t.fail {
		return errSynthetic
	}
	return nil
}

// taskFactory draws the fault of each task from the configured rates.
type taskFactory struct {
	duration    time.Duration
	failureRate float64
	panicRate   float64
	rnd         *rand.Rand
}

func newTaskFactory(duration time.Duration, failureRate, panicRate float64, seed uint64) *taskFactory {
	return &taskFactory{
		duration:    duration,
		failureRate: failureRate,
		panicRate:   panicRate,
		rnd:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// next is not safe for concurrent use; each producer owns a factory.
func (f *taskFactory) next() *sleepTask {
	// A single draw keeps the two rates disjoint.
	p := f.rnd.Float64()
	return &sleepTask{
		duration: f.duration,
		panic:    p < f.panicRate,
		fail:     p >= f.panicRate && p < f.panicRate+f.failureRate,
	}
}

func taskName(runID string, producer, index int) string {
	return fmt.Sprintf("%s/p%d/t%d", runID, producer, index)
}
