package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/fallguard/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	// Workers above one process events concurrently and give up ordering.
	Workers int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		Workers:    1,
	}
}

// EventBus provides asynchronous event processing with non-blocking publishing.
// Events sent with Publish bypass the bounded buffer: they are queued without
// limit and handled in order by a dedicated worker, so a backlog of status
// updates cannot drop them.
type EventBus struct {
	eventChan chan Event
	workers   int

	pendingMu sync.Mutex
	pending   []Event
	pendingCh chan struct{} // wakes the ordered worker

	mu        sync.RWMutex // guards running and the channel close
	running   bool
	consumers []EventConsumer
	wg        sync.WaitGroup

	stats EventBusStats
	log   logger.Logger
}

// GetLogger returns the events package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}

// NewEventBus creates a bus and starts its workers.
func NewEventBus(cfg Config) *EventBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	eb := &EventBus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		pendingCh: make(chan struct{}, 1),
		running:   true,
		log:       GetLogger(),
	}
	for id := range cfg.Workers {
		eb.wg.Go(func() { eb.worker(id) })
	}
	eb.wg.Go(eb.orderedWorker)

	eb.log.Debug("event bus started",
		logger.Int("buffer_size", cfg.BufferSize),
		logger.Int("workers", cfg.Workers))
	return eb
}

// RegisterConsumer adds a new event consumer
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}
	eb.consumers = append(eb.consumers, consumer)

	eb.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))
	return nil
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (eb *EventBus) TryPublish(event Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running || len(eb.consumers) == 0 {
		return false
	}

	select {
	case eb.eventChan <- event:
		atomic.AddUint64(&eb.stats.EventsReceived, 1)
		return true
	default:
		atomic.AddUint64(&eb.stats.EventsDropped, 1)
		eb.log.Debug("event dropped due to full buffer", logger.String("kind", string(event.Kind)))
		return false
	}
}

// Publish queues an event that must not be dropped. It never blocks.
// Returns false only when the bus is stopped or has no consumers.
func (eb *EventBus) Publish(event Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running || len(eb.consumers) == 0 {
		return false
	}

	eb.pendingMu.Lock()
	eb.pending = append(eb.pending, event)
	eb.pendingMu.Unlock()
	atomic.AddUint64(&eb.stats.EventsReceived, 1)

	select {
	case eb.pendingCh <- struct{}{}:
	default:
	}
	return true
}

// orderedWorker delivers Publish events in order. It drains the queue before
// exiting on shutdown.
func (eb *EventBus) orderedWorker() {
	log := eb.log.With(logger.String("worker", "ordered"))
	for {
		_, open := <-eb.pendingCh
		for {
			eb.pendingMu.Lock()
			batch := eb.pending
			eb.pending = nil
			eb.pendingMu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, event := range batch {
				eb.processEvent(event, log)
			}
		}
		if !open {
			return
		}
	}
}

func (eb *EventBus) pendingCount() int {
	eb.pendingMu.Lock()
	defer eb.pendingMu.Unlock()
	return len(eb.pending)
}

func (eb *EventBus) worker(id int) {
	log := eb.log.With(logger.Int("worker_id", id))
	for event := range eb.eventChan {
		eb.processEvent(event, log)
	}
}

// processEvent sends the event to all registered consumers
func (eb *EventBus) processEvent(event Event, log logger.Logger) {
	eb.mu.RLock()
	consumers := make([]EventConsumer, len(eb.consumers))
	copy(consumers, eb.consumers)
	eb.mu.RUnlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&eb.stats.ConsumerErrors, 1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				atomic.AddUint64(&eb.stats.ConsumerErrors, 1)
				log.Error("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("kind", string(event.Kind)),
					logger.Error(err))
				return
			}
			atomic.AddUint64(&eb.stats.EventsProcessed, 1)
		}()
	}
}

// Shutdown stops accepting events and waits up to timeout for the queued ones
// to be processed.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	close(eb.eventChan)
	close(eb.pendingCh)
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		eb.log.Debug("event bus shutdown complete")
		return nil
	case <-timer.C:
		eb.log.Warn("event bus shutdown timeout exceeded",
			logger.Int("pending", len(eb.eventChan)+eb.pendingCount()))
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	return EventBusStats{
		EventsReceived:  atomic.LoadUint64(&eb.stats.EventsReceived),
		EventsProcessed: atomic.LoadUint64(&eb.stats.EventsProcessed),
		EventsDropped:   atomic.LoadUint64(&eb.stats.EventsDropped),
		ConsumerErrors:  atomic.LoadUint64(&eb.stats.ConsumerErrors),
	}
}
