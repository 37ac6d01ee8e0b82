// internal/dex/jupiter/errors.go
package jupiter

import (
	"fmt"

	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// QuoteError сообщает, что агрегатор не выдал котировку или транзакцию.
// Temporary означает, что попытки исчерпаны на временных сбоях.
type QuoteError struct {
	Phase      string // "quote" или "swap"
	StatusCode int
	Message    string
	Temporary  bool
	Err        error
}

func (e *QuoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("jupiter %s failed (status %d): %s", e.Phase, e.StatusCode, msg)
	}
	return fmt.Sprintf("jupiter %s failed: %s", e.Phase, msg)
}

func (e *QuoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{types.ErrQuote}
	}
	return []error{types.ErrQuote, e.Err}
}

// retryableStatusError marks a response worth another attempt.
type retryableStatusError struct {
	StatusCode int
	Body       string
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}
