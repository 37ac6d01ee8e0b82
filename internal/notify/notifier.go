// Package notify доставляет владельцам позиций сообщения о событиях движка.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Message адресовано пользователю. UserID 0 означает оператора.
type Message struct {
	UserID int64
	Title  string
	Body   string
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier dispatches a message to every sender. One failing sender does not
// block delivery to the rest.
type Notifier struct {
	senders []Sender
	logger  *zap.Logger
}

func NewNotifier(logger *zap.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.Named("notifier"),
	}
}

func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.Error("Sender failed",
				zap.String("sender", s.Name()),
				zap.Int64("user_id", msg.UserID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug("Notification sent",
			zap.String("sender", s.Name()),
			zap.String("title", msg.Title))
	}
	return errors.Join(errs...)
}

// LogSender пишет уведомления в лог. Используется, когда Telegram не настроен.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notification")}
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.logger.Info(msg.Title, zap.Int64("user_id", msg.UserID), zap.String("body", msg.Body))
	return nil
}

func (l *LogSender) Name() string { return "log" }
