// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// Kinds of failure shared across components. Component errors wrap one of
// these so callers can branch with errors.Is without importing the component.
var (
	// ErrCredential возникает при неверном PIN или поврежденном зашифрованном ключе
	ErrCredential = errors.New("credential error")

	// ErrDataUnavailable возникает, когда ни один источник цены не ответил
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrQuote возникает, когда агрегатор отклонил котировку или сборку свапа
	ErrQuote = errors.New("quote error")

	// ErrProviderExhausted возникает, когда все RPC узлы отказали
	ErrProviderExhausted = errors.New("all providers exhausted")

	// ErrInsufficientFunds возникает, когда баланса не хватает на сделку и комиссии
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPersistence возникает при ошибке чтения или записи хранилища
	ErrPersistence = errors.New("persistence error")
)

// Error связывает вид ошибки с операцией и исходной причиной.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError создает ошибку заданного вида.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsPersistence reports whether err aborts a monitoring cycle.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
