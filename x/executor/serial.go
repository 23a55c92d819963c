package executor

import (
	"sync"

	"github.com/rs/zerolog"
)

// Serial runs tasks one at a time, in post order, on a dedicated goroutine.
// The queue is unbounded so Post never blocks the reader loop.
type Serial struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	log    zerolog.Logger
}

// NewSerial starts the worker goroutine. Close stops it after the queue drains.
func NewSerial(name string, log zerolog.Logger) *Serial {
	s := &Serial{
		done: make(chan struct{}),
		log:  log.With().Str("component", "executor").Str("executor", name).Logger(),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Post enqueues task. After Close the task runs on a fresh goroutine so late
// deliveries such as teardown errors are never lost.
func (s *Serial) Post(task func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go Safe(s.log, task)
		return
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.cond.Signal()
}

// Len reports the number of queued tasks.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting tasks into the queue. Already queued tasks still run.
// It does not wait; use Done for that.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Done is closed once the worker has drained the queue after Close.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		Safe(s.log, task)
	}
}
