package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"main/pkg/exception"
)

// InstrumentType describes the contract class of a leg.
type InstrumentType string

const (
	InstrumentEquity InstrumentType = "EQUITY"
	InstrumentOption InstrumentType = "OPTION"
)

// OptionType describes the option right.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// DefaultOptionMultiplier is the contract multiplier for US equity options.
const DefaultOptionMultiplier = 100

// Leg is a single equity or option contract specification.
type Leg struct {
	Symbol             string          `json:"symbol"`
	InstrumentType     InstrumentType  `json:"instrument_type"`
	OptionType         OptionType      `json:"option_type,omitempty"`
	Strike             decimal.Decimal `json:"strike,omitempty"`
	Expiration         time.Time       `json:"expiration,omitempty"`
	Side               Side            `json:"side"`
	Quantity           int64           `json:"quantity"`
	ContractMultiplier int64           `json:"contract_multiplier"`
}

// EquityLeg builds a plain equity leg with multiplier 1.
func EquityLeg(symbol string, side Side, quantity int64) Leg {
	return Leg{
		Symbol:             symbol,
		InstrumentType:     InstrumentEquity,
		Side:               side,
		Quantity:           quantity,
		ContractMultiplier: 1,
	}
}

// OptionLeg builds an option leg with the default US multiplier.
func OptionLeg(symbol string, optType OptionType, strike decimal.Decimal, expiration time.Time, side Side, quantity int64) Leg {
	return Leg{
		Symbol:             symbol,
		InstrumentType:     InstrumentOption,
		OptionType:         optType,
		Strike:             strike,
		Expiration:         expiration,
		Side:               side,
		Quantity:           quantity,
		ContractMultiplier: DefaultOptionMultiplier,
	}
}

// Validate checks the contract specification. Option expirations must be
// strictly in the future at validation time.
func (l Leg) Validate(now time.Time) error {
	if !validSymbol(l.Symbol) {
		return exception.ErrLegInvalidSymbol
	}
	if l.Side != SideBuy && l.Side != SideSell {
		return exception.ErrLegInvalidSide
	}
	if l.Quantity <= 0 {
		return exception.ErrLegInvalidQuantity
	}
	switch l.InstrumentType {
	case InstrumentEquity:
		if l.ContractMultiplier != 1 {
			return exception.ErrLegInvalidMultiplier
		}
	case InstrumentOption:
		if l.ContractMultiplier <= 0 {
			return exception.ErrLegInvalidMultiplier
		}
		if l.OptionType != OptionCall && l.OptionType != OptionPut {
			return exception.ErrLegInvalidOptionType
		}
		if !l.Strike.IsPositive() {
			return exception.ErrLegInvalidStrike
		}
		if !l.Expiration.After(now) {
			return exception.ErrLegExpired
		}
	default:
		return exception.ErrLegInvalidInstrument
	}
	return nil
}

// ContractSymbol encodes the leg as {UNDERLYING}_{YYMMDD}_{C|P}_{STRIKE*1000},
// the strike field zero-padded to at least six digits. Equity legs encode as
// the bare symbol.
func (l Leg) ContractSymbol() string {
	if l.InstrumentType != InstrumentOption {
		return l.Symbol
	}
	code := "C"
	if l.OptionType == OptionPut {
		code = "P"
	}
	strike := l.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s_%s_%s_%06d", l.Symbol, l.Expiration.Format("060102"), code, strike)
}

// Notional returns price * quantity * multiplier for a given per-unit price.
func (l Leg) Notional(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(l.Quantity)).Mul(decimal.NewFromInt(l.ContractMultiplier))
}
