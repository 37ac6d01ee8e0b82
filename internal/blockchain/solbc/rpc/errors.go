// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveClients = errors.New("no active RPC clients available")
	ErrNoEndpoints     = errors.New("no RPC endpoints configured")
)

// Error - отказ одного узла; Endpoint уже без ключей.
type Error struct {
	Err      error
	Endpoint string
	Method   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DefinitiveError прекращает перебор узлов: ответ окончательный и на другом
// узле не изменится.
type DefinitiveError struct {
	Err error
}

func (e *DefinitiveError) Error() string { return e.Err.Error() }
func (e *DefinitiveError) Unwrap() error { return e.Err }
