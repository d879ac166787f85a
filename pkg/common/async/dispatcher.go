// Copyright (c) 2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package async

import (
	"container/list"
	"context"
	"sync"
)

// Job is a unit of work accepted by the dispatcher.
type Job interface {
	Run(ctx context.Context)
}

// JobFunc adapts a plain function into a Job.
type JobFunc func(ctx context.Context)

// Run calls the function.
func (f JobFunc) Run(ctx context.Context) {
	f(ctx)
}

// Dispatcher runs jobs one at a time, in the order they were enqueued.
// All jobs added will be accepted but not run until they reach the front
// of the internal queue and the single worker is free. It is used to hand
// results off to user callbacks without blocking the caller and without
// reordering deliveries.
type Dispatcher struct {
	sync.Mutex

	// jobs are kept in a list rather than a channel so that Enqueue
	// never blocks regardless of backlog.
	list *list.List

	// enqueueSignal has a buffer size of 1, which guarantees the worker
	// observes a pending job even if the signal raced with its dequeue.
	enqueueSignal chan struct{}

	pending  sync.WaitGroup
	stopChan chan struct{}
}

// NewDispatcher returns a stopped dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		list:          list.New(),
		enqueueSignal: make(chan struct{}, 1),
	}
}

// Start spawns the worker goroutine. Calling Start on a running
// dispatcher is a no-op.
func (d *Dispatcher) Start() {
	d.Lock()
	defer d.Unlock()

	if d.stopChan != nil {
		return
	}
	d.stopChan = make(chan struct{})
	go d.runWorker(d.stopChan)
}

// Stop terminates the worker after the in-flight job, if any, returns.
// Jobs still queued are dropped.
func (d *Dispatcher) Stop() {
	d.Lock()
	defer d.Unlock()

	if d.stopChan == nil {
		return
	}
	close(d.stopChan)
	d.stopChan = nil
}

// Enqueue adds a job to the back of the queue. It returns immediately.
func (d *Dispatcher) Enqueue(job Job) {
	d.pending.Add(1)

	d.Lock()
	d.list.PushBack(job)
	d.Unlock()

	// Try signal a new item is available.
	select {
	case d.enqueueSignal <- struct{}{}:
	default:
	}
}

// WaitUntilProcessed blocks until every job enqueued so far has run.
// This is useful in testing.
func (d *Dispatcher) WaitUntilProcessed() {
	d.pending.Wait()
}

func (d *Dispatcher) runWorker(stopChan chan struct{}) {
	for {
		d.Lock()
		f := d.list.Front()
		if f != nil {
			d.list.Remove(f)
		}
		d.Unlock()

		if f == nil {
			select {
			case <-d.enqueueSignal:
				continue
			case <-stopChan:
				return
			}
		}

		f.Value.(Job).Run(context.TODO())
		d.pending.Done()

		select {
		case <-stopChan:
			return
		default:
		}
	}
}
