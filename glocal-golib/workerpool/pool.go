package workerpool

import (
	"sync"
)

// Job is a unit of work submitted to the pool.
type Job func() error

// Pool runs jobs on a fixed number of workers. Jobs added after Stop are
// discarded; jobs already queued when Stop is called may or may not run.
type Pool struct {
	work chan Job
	quit chan struct{}

	jobs sync.WaitGroup
	once sync.Once

	mu  sync.Mutex
	err error
}

// New returns a pool with the provided number of workers.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		work: make(chan Job),
		quit: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.work:
			if err := job(); err != nil {
				p.mu.Lock()
				if p.err == nil {
					p.err = err
				}
				p.mu.Unlock()
			}
			p.jobs.Done()
		}
	}
}

// Add queues the provided jobs. It does not block on job execution.
func (p *Pool) Add(jobs []Job) {
	p.jobs.Add(len(jobs))
	go func() {
		for _, job := range jobs {
			select {
			case <-p.quit:
				p.jobs.Done()
			case p.work <- job:
			}
		}
	}()
}

// Wait blocks until all queued jobs have completed (or were discarded by
// Stop), and returns the first error any job returned.
func (p *Pool) Wait() error {
	p.jobs.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop shuts the pool down. Safe to call more than once.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.quit)
	})
}
