package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-ordering/internal/logger"
)

const publishTimeout = 5 * time.Second

// Dispatcher queues events and hands them to its sinks from a background goroutine.
// When the queue is full the event is dropped and logged.
type Dispatcher struct {
	sinks  []Sink
	queue  chan Event
	logger *logger.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

func NewDispatcher(log *logger.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan Event, buffer),
		logger: log,
		done:   make(chan struct{}),
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Emit enqueues e without blocking.
func (d *Dispatcher) Emit(e Event) {
	select {
	case <-d.done:
		return
	default:
	}

	select {
	case d.queue <- e:
	default:
		d.logger.Warn("EVENTS", fmt.Sprintf("Queue full, dropping %s event for branch %s", e.Type, e.BranchID))
	}
}

// Close stops accepting events, flushes what is queued and waits for delivery.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.done:
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := sink.Publish(ctx, e); err != nil {
			d.logger.Error("EVENTS", fmt.Sprintf("Failed to deliver %s event: %v", e.Type, err))
		}
		cancel()
	}
}
