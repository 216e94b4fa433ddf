package services

import (
	"sync"

	"github.com/j-veylop/complyscan/internal/scanner"
)

// subscriberBuffer is how many droppable events a slow subscriber may have
// queued before new ones are discarded.
const subscriberBuffer = 256

// subscriber queues events for one consumer and delivers them in order from
// its own goroutine. Progress-style events are dropped when the queue is
// full. Events that a consumer must act on are always queued.
type subscriber struct {
	ch   chan ServiceEvent
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	queue []ServiceEvent
}

func newSubscriber() *subscriber {
	s := &subscriber{
		ch:   make(chan ServiceEvent),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// push queues event. It never blocks.
func (s *subscriber) push(event ServiceEvent) bool {
	s.mu.Lock()
	if len(s.queue) >= subscriberBuffer && !mustDeliver(event) {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// stop ends delivery. The goroutine closes ch once it exits.
func (s *subscriber) stop() {
	close(s.done)
}

func (s *subscriber) run() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		event := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- event:
		case <-s.done:
			return
		}
	}
}

// mustDeliver reports whether event carries something a consumer has to
// see: a cost decision request, its resolution or the end of a scan.
func mustDeliver(event ServiceEvent) bool {
	switch e := event.(type) {
	case ScanEvent:
		return e.Type == scanner.EventCostLimitReached ||
			e.Type == scanner.EventCostLimitResolved ||
			e.Type == scanner.EventFinished
	case ScanDoneEvent:
		return true
	default:
		return false
	}
}
