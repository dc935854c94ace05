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

package metrics

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMetricHandle records every call so that tests can assert on the exact
// metrics a component emits.
type MockMetricHandle struct {
	mock.Mock
}

var _ MetricHandle = (*MockMetricHandle)(nil)

func (m *MockMetricHandle) PoolActiveWorkers(inc int64) {
	m.Called(inc)
}

func (m *MockMetricHandle) PoolPendingTasks(inc int64) {
	m.Called(inc)
}

func (m *MockMetricHandle) TaskExecutionLatency(ctx context.Context, latency time.Duration, outcome TaskOutcome) {
	m.Called(ctx, latency, outcome)
}

func (m *MockMetricHandle) TaskOutcomeCount(inc int64, outcome TaskOutcome) {
	m.Called(inc, outcome)
}

func (m *MockMetricHandle) TaskQueueLatency(ctx context.Context, latency time.Duration) {
	m.Called(ctx, latency)
}

func (m *MockMetricHandle) TaskSubmitCount(inc int64, status SubmitStatus) {
	m.Called(inc, status)
}
