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

package workerpool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolNotRunning is returned by Submit once Stop has been called. The
	// task was not queued and still belongs to the caller.
	ErrPoolNotRunning = errors.New("workerpool: pool is not running")

	// ErrPoolAlreadyStopped is returned by every Stop call but the first.
	ErrPoolAlreadyStopped = errors.New("workerpool: pool already stopped")

	ErrTaskRemoved        = errors.New("workerpool: task removed before execution")
	ErrTaskDiscarded      = errors.New("workerpool: task discarded by hard stop")
	ErrInvalidWorkerCount = errors.New("workerpool: worker count must be positive")
	ErrNilTask            = errors.New("workerpool: nil task")
)

// PanicError is the outcome of a task whose Execute panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
