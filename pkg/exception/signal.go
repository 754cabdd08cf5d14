package exception

import "errors"

// Signal contract violations. Terminal, never retried automatically.
var (
	ErrSignalEmptyStrategy     = errors.New("signal: empty strategy id")
	ErrSignalInvalidSymbol     = errors.New("signal: invalid symbol")
	ErrSignalInvalidSide       = errors.New("signal: side must be BUY or SELL")
	ErrSignalInvalidConfidence = errors.New("signal: confidence out of [0, 1]")
	ErrSignalInvalidExposure   = errors.New("signal: target exposure must be positive")
	ErrSignalInvalidHorizon    = errors.New("signal: unknown time horizon")
	ErrSignalInvalidSlippage   = errors.New("signal: max slippage out of [0, 1000] bps")
	ErrSignalInvalidNotional   = errors.New("signal: max notional must be positive")
	ErrSignalDecode            = errors.New("signal: decode payload")
)

// Leg contract violations.
var (
	ErrLegInvalidSymbol     = errors.New("leg: invalid symbol")
	ErrLegInvalidSide       = errors.New("leg: side must be BUY or SELL")
	ErrLegInvalidQuantity   = errors.New("leg: quantity must be positive")
	ErrLegInvalidMultiplier = errors.New("leg: invalid contract multiplier")
	ErrLegInvalidOptionType = errors.New("leg: option type must be CALL or PUT")
	ErrLegInvalidStrike     = errors.New("leg: strike must be positive")
	ErrLegExpired           = errors.New("leg: expiration must be in the future")
	ErrLegInvalidInstrument = errors.New("leg: unknown instrument type")
)
