// Package dispatcher runs accepted webhook events through the evaluator on a
// bounded pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cexll/fcpbot/internal/github"
	"github.com/cexll/fcpbot/internal/nag"
	"github.com/cexll/fcpbot/internal/webhook"
)

// Evaluator consumes events. *nag.Evaluator implements it.
type Evaluator interface {
	HandleComment(ctx context.Context, ev nag.CommentEvent) error
	RecordIssue(ctx context.Context, issue github.Issue) error
}

// Config controls dispatcher behaviour
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds the handling of one event.
	Timeout time.Duration
}

// Dispatcher processes events in arrival order per issue. Failed events are
// logged and dropped; the periodic sweep reconciles whatever they left behind.
type Dispatcher struct {
	evaluator Evaluator
	cfg       Config

	queue chan *webhook.Event

	keyedLocks *keyedMutex

	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

// New creates a dispatcher with the provided configuration
func New(evaluator Evaluator, cfg Config) *Dispatcher {
	normalized := normalizeConfig(cfg)
	d := &Dispatcher{
		evaluator:  evaluator,
		cfg:        normalized,
		queue:      make(chan *webhook.Event, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		stopCh:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues an event without blocking.
func (d *Dispatcher) Enqueue(event *webhook.Event) error {
	if event == nil {
		return errors.New("dispatcher enqueue: event is nil")
	}

	select {
	case <-d.stopCh:
		return webhook.ErrQueueClosed
	default:
	}

	select {
	case d.queue <- event:
		return nil
	default:
		return webhook.ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case event, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(event)
		}
	}
}

func (d *Dispatcher) process(event *webhook.Event) {
	key := event.Key()
	d.keyedLocks.Lock(key)
	defer d.keyedLocks.Unlock(key)

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := d.handle(ctx, event); err != nil {
		log.Printf("[Dispatcher] %s %s for %s failed after %s: %v", event.Kind, event.DeliveryID, key, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[Dispatcher] %s %s for %s done in %s", event.Kind, event.DeliveryID, key, time.Since(start).Round(time.Millisecond))
}

func (d *Dispatcher) handle(ctx context.Context, event *webhook.Event) error {
	switch event.Kind {
	case webhook.KindComment:
		if event.Comment == nil {
			return errors.New("comment event without comment")
		}
		return d.evaluator.HandleComment(ctx, nag.CommentEvent{Issue: event.Issue, Comment: *event.Comment})
	case webhook.KindIssue:
		return d.evaluator.RecordIssue(ctx, event.Issue)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

// Shutdown gracefully stops the dispatcher
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return
	case <-done:
		return
	}
}

// keyedMutex serialises work per issue across workers.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if !ok {
		return
	}

	m.Unlock()
}
