package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// DefaultQueueSize is the number of undelivered events an observer may
// have before it is considered too slow and removed.
const DefaultQueueSize = 64

var (
	// ErrSlowObserver is the removal reason for an observer whose queue
	// was full at publish time.
	ErrSlowObserver = errors.New("observer queue full")

	// ErrUnsubscribed is the removal reason after Unsubscribe.
	ErrUnsubscribed = errors.New("observer unsubscribed")

	// ErrClosed is the removal reason after Close.
	ErrClosed = errors.New("broadcaster closed")
)

// Event is the payload pushed to observers. A nil Message means no
// endpoint is known yet.
type Event struct {
	Message *string `json:"message"`
}

// TunnelFound returns an event announcing url.
func TunnelFound(url string) Event {
	return Event{Message: &url}
}

// NoMatch returns the empty event sent to new subscribers.
func NoMatch() Event {
	return Event{}
}

// URL returns the announced endpoint or "".
func (e Event) URL() string {
	if e.Message == nil {
		return ""
	}
	return *e.Message
}

// Marshal encodes the event as sent on the wire.
func (e Event) Marshal() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Sink receives serialized events for one observer. Send is only ever
// called from a single goroutine per observer.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload []byte) error

func (f SinkFunc) Send(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Observer is one subscription.
type Observer struct {
	id    string
	sink  Sink
	queue chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// ID returns the observer identity.
func (o *Observer) ID() string {
	return o.id
}

// Done is closed once the observer has been removed and its delivery
// goroutine has exited.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Err returns why the observer was removed, or nil while it is active.
func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Observer) halt(reason error) {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.err = reason
		o.mu.Unlock()
		o.cancel()
		close(o.stop)
	})
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithQueueSize sets the per-observer queue length.
func WithQueueSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithOnChange registers a callback invoked with the observer count after
// every subscribe or removal.
func WithOnChange(fn func(observers int)) Option {
	return func(b *Broadcaster) {
		b.onChange = fn
	}
}

// Broadcaster fans events out to observers. Publish never blocks on an
// observer: each one has its own queue and delivery goroutine, and an
// observer that falls behind or fails a send is dropped.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[string]*Observer
	closed    bool

	// pubMu keeps concurrent publishes from interleaving, so every
	// observer sees the same relative order.
	pubMu sync.Mutex

	queueSize int
	logger    *slog.Logger
	onChange  func(int)
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		observers: make(map[string]*Observer),
		queueSize: DefaultQueueSize,
		logger:    logging.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers sink and starts delivering events to it. After Close
// the returned observer is already done.
func (b *Broadcaster) Subscribe(sink Sink) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		id:     uuid.NewString(),
		sink:   sink,
		queue:  make(chan []byte, b.queueSize),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		o.halt(ErrClosed)
		close(o.done)
		return o
	}
	b.observers[o.id] = o
	n := len(b.observers)
	b.mu.Unlock()

	b.notify(n)
	b.logger.Debug("observer subscribed", "observer", o.id, "observers", n)

	go b.deliver(o)
	return o
}

// Unsubscribe removes an observer and waits for its delivery goroutine to
// stop. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	o, ok := b.observers[id]
	b.mu.Unlock()
	if !ok {
		return
	}

	b.remove(o, ErrUnsubscribed)
	<-o.done
}

// Publish queues ev for every current observer and returns how many
// accepted it.
func (b *Broadcaster) Publish(ev Event) int {
	payload := ev.Marshal()

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	snapshot := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		snapshot = append(snapshot, o)
	}
	b.mu.Unlock()

	delivered := 0
	for _, o := range snapshot {
		select {
		case o.queue <- payload:
			delivered++
		default:
			b.remove(o, ErrSlowObserver)
		}
	}
	return delivered
}

// Len returns the number of active observers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Close removes every observer, waits for delivery to stop and rejects
// later subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	snapshot := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		snapshot = append(snapshot, o)
	}
	b.mu.Unlock()

	for _, o := range snapshot {
		b.remove(o, ErrClosed)
	}
	for _, o := range snapshot {
		<-o.done
	}
}

func (b *Broadcaster) remove(o *Observer, reason error) {
	b.mu.Lock()
	_, ok := b.observers[o.id]
	delete(b.observers, o.id)
	n := len(b.observers)
	b.mu.Unlock()

	o.halt(reason)
	if !ok {
		return
	}

	b.notify(n)
	if errors.Is(reason, ErrUnsubscribed) || errors.Is(reason, ErrClosed) {
		b.logger.Debug("observer removed", "observer", o.id, "reason", reason, "observers", n)
	} else {
		b.logger.Warn("observer dropped", "observer", o.id, "error", reason, "observers", n)
	}
}

func (b *Broadcaster) notify(n int) {
	if b.onChange != nil {
		b.onChange(n)
	}
}

func (b *Broadcaster) deliver(o *Observer) {
	defer close(o.done)

	for {
		select {
		case <-o.stop:
			return
		case payload := <-o.queue:
			if err := o.sink.Send(o.ctx, payload); err != nil {
				b.remove(o, err)
				return
			}
		}
	}
}
