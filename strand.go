// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"sync"
)

// strand is a serial executor: tasks handed to it run one at a time,
// in submission order, on top of a shared goroutine pool. All
// connection state-machine mutations run on the connection's strand,
// so none of them need locks against each other.
type strand struct {
	mux      sync.Mutex
	tasks    []func()
	running  bool
	executor func(f func())
}

func newStrand(executor func(f func())) *strand {
	return &strand{executor: executor}
}

// Post enqueues f; it never runs inline, even when called from a task
// already on the strand. Used where inline execution could recurse
// unboundedly (want_more from a fast handler).
func (s *strand) Post(f func()) {
	s.mux.Lock()
	s.tasks = append(s.tasks, f)
	wasRunning := s.running
	s.running = true
	s.mux.Unlock()
	if !wasRunning {
		s.executor(s.drain)
	}
}

// Dispatch runs f immediately when the strand is idle, claiming it for
// the calling goroutine; otherwise it enqueues like Post.
func (s *strand) Dispatch(f func()) {
	s.mux.Lock()
	if s.running {
		s.tasks = append(s.tasks, f)
		s.mux.Unlock()
		return
	}
	s.running = true
	s.mux.Unlock()
	f()
	s.drain()
}

// drain executes queued tasks until none remain, then releases the
// strand. Invariant: exactly one goroutine drains at any moment.
func (s *strand) drain() {
	for {
		s.mux.Lock()
		if len(s.tasks) == 0 {
			s.running = false
			s.mux.Unlock()
			return
		}
		f := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mux.Unlock()
		f()
	}
}
