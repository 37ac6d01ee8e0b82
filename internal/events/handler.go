// internal/events/handler.go
package events

import "context"

// Handler получает события одного типа. Контекст ограничен таймаутом
// обработчика шины.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription отменяет подписку.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
}

func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.typ)
}

// Publisher - сторона отправки; монитор и сервис зависят только от нее.
type Publisher interface {
	Publish(event Event) error
}

var _ Publisher = (*Bus)(nil)
