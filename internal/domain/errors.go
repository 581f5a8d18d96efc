package domain

import "errors"

// Taxonomía de errores del sniper. Los adapters los envuelven con %w y el
// runner los clasifica con errors.Is.
var (
	// ErrTransientFetch: una query de listados falló; el resto del scan sigue.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrUnparseableTime: no se pudo obtener la fecha de expiración de un mercado.
	ErrUnparseableTime = errors.New("unparseable time")
	// ErrUnparseableTokens: tokens/outcomes ausentes o malformados.
	ErrUnparseableTokens = errors.New("unparseable tokens")
	// ErrStreamDisconnect: el stream se cayó y se agotaron los reintentos.
	ErrStreamDisconnect = errors.New("stream disconnected")
	// ErrOrderRejected: el CLOB rechazó la orden (FOK sin fill, balance, etc).
	ErrOrderRejected = errors.New("order rejected")
	// ErrOrderTransport: la orden no llegó al CLOB o la respuesta no se pudo leer.
	ErrOrderTransport = errors.New("order transport error")
	// ErrLockHeld: otro proceso ya disparó (o está disparando) sobre el mismo mercado.
	ErrLockHeld = errors.New("lock held")
)
