// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

const (
	// DefaultBufferSize - емкость очереди одного воркера.
	DefaultBufferSize = 256
	// DefaultWorkers - число очередей доставки.
	DefaultWorkers = 4
	// DefaultHandlerTimeout ограничивает один вызов обработчика.
	DefaultHandlerTimeout = 15 * time.Second
)

// Bus доставляет события асинхронно. События одного пользователя попадают
// в одну очередь и обрабатываются по порядку; прочие идут в очередь 0.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler

	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	queues         []chan Event
	bufferSize     int
	handlerTimeout time.Duration
	dropped        atomic.Uint64

	// closeMu разделяет Publish и Shutdown: после closed в очереди ничего не попадает
	closeMu sync.RWMutex
	closed  bool
}

func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers:       make(map[EventType]map[string]Handler),
		logger:         logger.Named("event_bus"),
		ctx:            ctx,
		cancel:         cancel,
		queues:         make([]chan Event, DefaultWorkers),
		bufferSize:     bufferSize,
		handlerTimeout: DefaultHandlerTimeout,
	}
	for i := range b.queues {
		b.queues[i] = make(chan Event, bufferSize)
		b.wg.Add(1)
		go b.worker(b.queues[i])
	}
	return b
}

// SetHandlerTimeout меняет таймаут обработчика. Вызывать до публикации.
func (b *Bus) SetHandlerTimeout(d time.Duration) {
	if d > 0 {
		b.handlerTimeout = d
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, eventBus: b, typ: eventType}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish ставит событие в очередь и не блокируется. Переполненная очередь
// отбрасывает событие с ErrBusFull.
func (b *Bus) Publish(event Event) error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queueFor(event) <- event:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event queue full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync вызывает обработчики в текущей горутине и объединяет их ошибки.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	errs := b.dispatch(ctx, event)
	if len(errs) > 0 {
		return fmt.Errorf("%d handlers failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (b *Bus) queueFor(event Event) chan Event {
	if ue, ok := event.(UserEvent); ok {
		return b.queues[uint64(ue.User())%uint64(len(b.queues))]
	}
	return b.queues[0]
}

func (b *Bus) worker(queue chan Event) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			// дочитываем то, что уже принято
			for {
				select {
				case event := <-queue:
					b.dispatch(context.Background(), event)
				default:
					return
				}
			}
		case event := <-queue:
			b.dispatch(b.ctx, event)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event) []error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers[event.Type()]))
	for id, h := range b.handlers[event.Type()] {
		handlers[id] = h
	}
	b.mu.RUnlock()

	var errs []error
	for id, h := range handlers {
		if err := b.call(ctx, h, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// call isolates a handler: a panic becomes an error and the handler gets its own deadline.
func (b *Bus) call(ctx context.Context, h Handler, event Event) (err error) {
	hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(hctx, event)
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}
	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown прекращает прием событий и ждет доставки уже принятых.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")
	b.closeMu.Lock()
	b.closed = true
	b.closeMu.Unlock()
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete", zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats describes the bus queues and subscriptions.
type Stats struct {
	Workers         int
	BufferSize      int
	PendingEvents   int
	Dropped         uint64
	HandlersPerType map[EventType]int
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		Workers:         len(b.queues),
		BufferSize:      b.bufferSize,
		Dropped:         b.dropped.Load(),
		HandlersPerType: make(map[EventType]int, len(b.handlers)),
	}
	for _, q := range b.queues {
		stats.PendingEvents += len(q)
	}
	for eventType, handlers := range b.handlers {
		stats.HandlersPerType[eventType] = len(handlers)
	}
	return stats
}
