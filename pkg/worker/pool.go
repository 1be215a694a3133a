// Package worker implements a bounded, per-category job pool: one
// goroutine group per queue class, each sized independently, draining
// a buffered job channel until the pool is closed.
package worker

import (
	"fmt"
	"sync"
)

// Job is a single unit of work submitted to one queue class.
type Job struct {
	// Class selects which of the pool's per-class worker groups runs
	// this job.
	Class int
	Run   func()
}

// Pool is a fixed group of per-class worker goroutines, sized at
// creation the way sts_create takes num_queues and a concurrency per
// queue.
type Pool struct {
	name string

	mu      sync.Mutex
	queues  []chan Job
	qjobsMax []int // configured concurrency per class (qjobs_max)
	qjobs   []int // live job count per class, for Qfull/Qempty
	closed  bool
	wg      sync.WaitGroup
	printCB func(format string, args ...any)
}

// queueBacklog bounds how many submitted-but-not-yet-running jobs a
// class's channel can hold once every worker is busy; admission itself
// is governed by qjobsMax, not this buffer.
const queueBacklog = 64

// NewPool implements sts_create: concurrency[i] is the number of
// worker goroutines servicing class i, and also the class's queue
// depth (qjobs_max).
func NewPool(name string, concurrency []int, printCB func(format string, args ...any)) *Pool {
	if printCB == nil {
		printCB = func(string, ...any) {}
	}
	p := &Pool{
		name:     name,
		queues:   make([]chan Job, len(concurrency)),
		qjobsMax: make([]int, len(concurrency)),
		qjobs:    make([]int, len(concurrency)),
		printCB:  printCB,
	}
	for class, n := range concurrency {
		if n <= 0 {
			n = 1
		}
		p.qjobsMax[class] = n
		ch := make(chan Job, queueBacklog)
		p.queues[class] = ch
		for w := 0; w < n; w++ {
			p.wg.Add(1)
			go p.runWorker(class, ch)
		}
	}
	return p
}

func (p *Pool) runWorker(class int, ch chan Job) {
	defer p.wg.Done()
	for job := range ch {
		job.Run()
		p.jobDone(class)
	}
}

func (p *Pool) jobDone(class int) {
	p.mu.Lock()
	p.qjobs[class]--
	p.mu.Unlock()
}

// Submit implements sts_job_submit. It returns false (qfull) without
// blocking if the class is already running qjobs_max jobs.
func (p *Pool) Submit(class int, run func()) bool {
	p.mu.Lock()
	if p.closed || class < 0 || class >= len(p.queues) {
		p.mu.Unlock()
		return false
	}
	if p.qjobs[class] >= p.qjobsMax[class] {
		p.mu.Unlock()
		return false
	}
	p.qjobs[class]++
	ch := p.queues[class]
	p.mu.Unlock()

	select {
	case ch <- Job{Class: class, Run: run}:
		return true
	default:
		p.jobDone(class)
		return false
	}
}

// QDepth reports the live job count for a class (qjobs).
func (p *Pool) QDepth(class int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if class < 0 || class >= len(p.qjobs) {
		return 0
	}
	return p.qjobs[class]
}

// QFull reports whether class is at its configured concurrency limit.
func (p *Pool) QFull(class int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if class < 0 || class >= len(p.qjobs) {
		return true
	}
	return p.qjobs[class] >= p.qjobsMax[class]
}

// Resize changes a class's qjobs_max at runtime, backing the
// configuration layer's runtime-mutable qthreads input. It does not
// add or remove worker goroutines; instead it raises or lowers the
// concurrency ceiling Submit enforces, which is sufficient for the
// monitor's ~10 s settings-refresh cadence.
func (p *Pool) Resize(class int, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if class < 0 || class >= len(p.queues) {
		return fmt.Errorf("worker: class %d out of range", class)
	}
	if n <= 0 {
		n = 1
	}
	p.qjobsMax[class] = n
	return nil
}

// Destroy implements sts_destroy: closes every queue and waits for
// in-flight jobs to finish.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queues := p.queues
	p.mu.Unlock()

	for _, ch := range queues {
		close(ch)
	}
	p.wg.Wait()
	p.printCB("worker pool %s destroyed", p.name)
}
