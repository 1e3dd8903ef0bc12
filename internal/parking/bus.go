package parking

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"parknet-api-server/internal/metrics"
	"parknet-api-server/internal/models"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// OverflowPolicy decides what happens when a subscriber's queue is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued event. The subscriber sees a sequence gap
	// and is expected to reconcile from a snapshot.
	DropOldest OverflowPolicy = "drop-oldest"
	// Disconnect closes the subscription with ErrSubscriberOverflow.
	Disconnect OverflowPolicy = "disconnect"
)

// ParseOverflowPolicy maps a config value to a policy. Empty means DropOldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", DropOldest:
		return DropOldest, nil
	case Disconnect:
		return Disconnect, nil
	}
	return "", fmt.Errorf("overflow policy %q: %w", s, ErrInvalidArgument)
}

// Sink receives every published event off the hot path (journal, relay).
// Events of one slot reach a sink one at a time, in sequence order.
// A failing sink should return an error wrapping ErrTransientUnavailable.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev models.ChangeEvent) error
}

const (
	defaultQueueSize     = 64
	defaultSinkWorkers   = 4
	defaultRetryAttempts = 3
	defaultRetryBase     = 50 * time.Millisecond
)

type BusOption func(*Bus)

func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func WithOverflowPolicy(p OverflowPolicy) BusOption {
	return func(b *Bus) {
		if p != "" {
			b.policy = p
		}
	}
}

func WithSinks(sinks ...Sink) BusOption {
	return func(b *Bus) { b.sinks = append(b.sinks, sinks...) }
}

func WithSinkWorkers(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.sinkWorkers = n
		}
	}
}

// WithSinkRetry sets how many times a sink is tried and the first backoff delay.
func WithSinkRetry(attempts int, base time.Duration) BusOption {
	return func(b *Bus) {
		if attempts > 0 {
			b.retryAttempts = attempts
		}
		if base > 0 {
			b.retryBase = base
		}
	}
}

func WithBusMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// Bus fans slot change events out to per-facility subscribers. Each subscriber
// owns a bounded queue, so a slow consumer never holds up the others.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	closed bool

	queueSize     int
	policy        OverflowPolicy
	sinks         []Sink
	sinkWorkers   int
	retryAttempts int
	retryBase     time.Duration
	lanes         [][]*workerpool.WorkerPool
	sinkCtx       context.Context
	cancelSinks   context.CancelFunc

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewBus(logger *zap.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		subs:          make(map[string]map[uint64]*Subscription),
		queueSize:     defaultQueueSize,
		policy:        DropOldest,
		sinkWorkers:   defaultSinkWorkers,
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
		logger:        logger.Named("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sinkCtx, b.cancelSinks = context.WithCancel(context.Background())
	// Each sink gets sinkWorkers single-worker lanes. A slot always maps to the
	// same lane, so a sink sees that slot's events in sequence order.
	b.lanes = make([][]*workerpool.WorkerPool, len(b.sinks))
	for i := range b.sinks {
		b.lanes[i] = make([]*workerpool.WorkerPool, b.sinkWorkers)
		for k := range b.lanes[i] {
			b.lanes[i][k] = workerpool.New(1)
		}
	}
	return b
}

// Subscribe opens a live subscription to a facility's events. There is no replay:
// callers that need current state take a registry snapshot (see Registry.Watch).
func (b *Bus) Subscribe(facilityID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:         b.nextID,
		facilityID: facilityID,
		bus:        b,
		ch:         make(chan models.ChangeEvent, b.queueSize),
		done:       make(chan struct{}),
	}
	if b.closed {
		sub.close(nil)
		return sub
	}
	if b.subs[facilityID] == nil {
		b.subs[facilityID] = make(map[uint64]*Subscription)
	}
	b.subs[facilityID][sub.id] = sub
	b.metrics.SubscriberAdded()
	return sub
}

// Unsubscribe is idempotent. Events already queued stay readable from the
// subscription's channel until drained.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.detach(sub)
	sub.close(nil)
}

func (b *Bus) detach(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sub.facilityID]
	if !ok {
		return false
	}
	if _, ok := set[sub.id]; !ok {
		return false
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(b.subs, sub.facilityID)
	}
	b.metrics.SubscriberRemoved()
	return true
}

// Publish enqueues ev for every subscriber of its facility and hands it to the
// sinks. It never blocks on a consumer. The registry calls it while holding the
// slot lock, which is what keeps per-slot order intact in every queue.
func (b *Bus) Publish(ev models.ChangeEvent) {
	var overflowed []*Subscription

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, sub := range b.subs[ev.FacilityID] {
		switch sub.enqueue(ev, b.policy) {
		case enqueueDropped:
			b.metrics.EventDropped()
		case enqueueOverflowed:
			overflowed = append(overflowed, sub)
		}
	}
	if len(b.sinks) > 0 {
		lane := laneFor(ev, b.sinkWorkers)
		for i, s := range b.sinks {
			sink := s
			b.lanes[i][lane].Submit(func() { b.deliver(sink, ev) })
		}
	}
	b.mu.RUnlock()

	b.metrics.EventPublished(ev.FacilityID)
	for _, sub := range overflowed {
		if b.detach(sub) {
			b.metrics.SubscriberDisconnected()
			b.logger.Warn("subscriber disconnected on overflow",
				zap.String("facility", sub.facilityID),
				zap.Uint64("subscription", sub.id),
				zap.Int("queueSize", b.queueSize),
			)
		}
	}
}

func laneFor(ev models.ChangeEvent, n int) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s/%d", ev.FacilityID, ev.SlotNumber)
	return int(h.Sum32() % uint32(n))
}

func (b *Bus) deliver(sink Sink, ev models.ChangeEvent) {
	delay := b.retryBase
	var err error
	for attempt := 1; attempt <= b.retryAttempts; attempt++ {
		if err = sink.Handle(b.sinkCtx, ev); err == nil {
			return
		}
		if attempt == b.retryAttempts {
			break
		}
		select {
		case <-b.sinkCtx.Done():
			attempt = b.retryAttempts
		case <-time.After(delay):
			delay *= 2
		}
	}
	b.metrics.SinkFailed(sink.Name())
	b.logger.Warn("sink failed to handle event",
		zap.String("sink", sink.Name()),
		zap.String("facility", ev.FacilityID),
		zap.Int("slot", ev.SlotNumber),
		zap.Uint64("sequence", ev.Sequence),
		zap.Error(err),
	)
}

// SubscriberCount returns the number of open subscriptions for a facility.
func (b *Bus) SubscriberCount(facilityID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[facilityID])
}

// Close ends every subscription and waits for queued sink work to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := b.subs
	b.subs = make(map[string]map[uint64]*Subscription)
	b.mu.Unlock()

	for _, set := range all {
		for _, sub := range set {
			b.metrics.SubscriberRemoved()
			sub.close(nil)
		}
	}
	for _, lanes := range b.lanes {
		for _, pool := range lanes {
			pool.StopWait()
		}
	}
	b.cancelSinks()
}

type enqueueResult int

const (
	enqueueDelivered enqueueResult = iota
	enqueueDropped
	enqueueOverflowed
	enqueueClosed
)

// Subscription is one consumer's view of a facility's event stream.
type Subscription struct {
	id         uint64
	facilityID string
	bus        *Bus

	mu      sync.Mutex
	ch      chan models.ChangeEvent
	done    chan struct{}
	closed  bool
	err     error
	dropped atomic.Uint64
}

func (s *Subscription) FacilityID() string { return s.facilityID }

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.ChangeEvent { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped counts events evicted under the drop-oldest policy.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Err is ErrSubscriberOverflow if the bus cut the subscription off, nil otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription) enqueue(ev models.ChangeEvent, policy OverflowPolicy) enqueueResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return enqueueClosed
	}
	select {
	case s.ch <- ev:
		return enqueueDelivered
	default:
	}

	if policy == Disconnect {
		s.closeLocked(ErrSubscriberOverflow)
		return enqueueOverflowed
	}

	select {
	case <-s.ch:
	default:
	}
	s.dropped.Add(1)
	select {
	case s.ch <- ev:
	default:
	}
	return enqueueDropped
}

func (s *Subscription) close(err error) {
	s.mu.Lock()
	s.closeLocked(err)
	s.mu.Unlock()
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
}
