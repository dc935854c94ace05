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

// Provides sync.Locker implementations with optional invariant checking and
// debug utils.
package locker

import (
	"runtime"
	"sync"
	"time"

	"github.com/googlecloudplatform/threadpool/internal/logger"
	"github.com/jacobsa/syncutil"
)

// deadlockTimeout is how long a lock may be held before the debugger logs a
// potential dead lock.
const deadlockTimeout = 5 * time.Second

var (
	gEnableInvariantsCheck bool
	gEnableDebugMessages   bool
)

// EnableInvariantsCheck makes every locker created afterwards run its check
// function on Lock and Unlock, panicking on violation.
func EnableInvariantsCheck() {
	gEnableInvariantsCheck = true
	syncutil.EnableInvariantChecking()
}

// EnableDebugMessages makes every locker created afterwards log at TRACE when
// it is held for longer than five seconds.
func EnableDebugMessages() {
	gEnableDebugMessages = true
}

// New returns a mutex with potential capability for invariant checking and
// debugging. check may be nil.
//
// With checking enabled, check also runs once inside New, so the state it
// guards must already be consistent when New is called. The returned locker
// can be handed to sync.NewCond.
func New(name string, check func()) sync.Locker {
	var l sync.Locker = &sync.Mutex{}

	if gEnableInvariantsCheck && check != nil {
		m := syncutil.NewInvariantMutex(check)
		l = &m
	}

	if gEnableDebugMessages {
		l = &debugger{
			locker: l,
			name:   name,
		}
	}

	return l
}

type debugger struct {
	locker sync.Locker
	name   string
	holder string
	timer  *time.Timer
}

func (d *debugger) Lock() {
	d.locker.Lock()
	d.holder = currentStack()
	d.timer = reportAfter(deadlockTimeout, d.name, d.holder)
}

func (d *debugger) Unlock() {
	d.holder = ""
	d.timer.Stop()
	d.timer = nil

	d.locker.Unlock()
}

// RWLocker is a sync.Locker that also admits shared readers, such as the
// lock guarding a workload report that producers update while the caller
// polls snapshots.
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// NewRW is New for a readers-writer lock. check, when enabled, runs on every
// acquire and release, shared ones included, so it must only read the guarded
// state.
//
// Only writers are watched by the debugger: readers may overlap, so a single
// holder cannot be recorded for them.
func NewRW(name string, check func()) RWLocker {
	var l RWLocker = &sync.RWMutex{}

	if gEnableInvariantsCheck && check != nil {
		l = &rwChecker{
			rw:    l,
			check: check,
		}
	}

	if gEnableDebugMessages {
		l = &rwDebugger{
			debugger: debugger{locker: l, name: name},
			rw:       l,
		}
	}

	return l
}

// rwChecker runs check right after every acquire and right before every
// release.
type rwChecker struct {
	rw    RWLocker
	check func()
}

func (c *rwChecker) Lock() {
	c.rw.Lock()
	c.check()
}

func (c *rwChecker) Unlock() {
	c.check()
	c.rw.Unlock()
}

func (c *rwChecker) RLock() {
	c.rw.RLock()
	c.check()
}

func (c *rwChecker) RUnlock() {
	c.check()
	c.rw.RUnlock()
}

// rwDebugger reuses the writer-side debugger and passes readers through.
type rwDebugger struct {
	debugger
	rw RWLocker
}

func (d *rwDebugger) RLock() {
	d.rw.RLock()
}

func (d *rwDebugger) RUnlock() {
	d.rw.RUnlock()
}

// reportAfter logs a potential dead lock for the named lock unless the
// returned timer is stopped within d.
func reportAfter(d time.Duration, name, holder string) *time.Timer {
	return time.AfterFunc(d, func() {
		logger.Tracef("debug_mutex: Potential dead lock detected for a lock %q held by: %v\n", name, holder)
	})
}

func currentStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false /* all */)
	return string(buf[:n])
}
