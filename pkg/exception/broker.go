package exception

import "errors"

// Broker adapter faults.
var (
	// ErrUnsupported is returned by adapters for capability gaps. Never a
	// silent no-op.
	ErrUnsupported = errors.New("broker: unsupported operation")

	// ErrTransport covers unreachable venues and timeouts. The router leaves
	// state non-terminal so the caller may retry.
	ErrTransport = errors.New("broker: transport failure")

	ErrBrokerNotConnected = errors.New("broker: not connected")
	ErrCancelRejected     = errors.New("broker: cancel rejected, order already terminal")
	ErrUnknownBrokerRef   = errors.New("broker: unknown order reference")
	ErrBrokerRejected     = errors.New("broker: order rejected by venue")
)

// Ledger and pipeline faults.
var (
	ErrLedgerUnavailable = errors.New("ledger: backend unavailable")
	ErrRouterNilBroker   = errors.New("router: nil broker adapter")
	ErrRouteNotAccepted  = errors.New("router: risk decision did not accept the signal")
)
