package risk

import "github.com/shopspring/decimal"

// Limits defines the risk thresholds the gate enforces. Zero-valued limits
// are disabled.
type Limits struct {
	MaxPositionSizeUSD    decimal.Decimal `json:"maxPositionSizeUsd"`
	MaxTotalExposureUSD   decimal.Decimal `json:"maxTotalExposureUsd"`
	MaxSingleAssetPct     decimal.Decimal `json:"maxSingleAssetPct"`
	MaxDailyLossUSD       decimal.Decimal `json:"maxDailyLossUsd"`
	MaxDailyLossPct       decimal.Decimal `json:"maxDailyLossPct"`
	MaxOrderNotionalUSD   decimal.Decimal `json:"maxOrderNotionalUsd"`
	MinOrderNotionalUSD   decimal.Decimal `json:"minOrderNotionalUsd"`
	MaxSlippageBps        int64           `json:"maxSlippageBps"`
	MaxOrdersPerMinute    int             `json:"maxOrdersPerMinute"`
	MaxOrdersPerHour      int             `json:"maxOrdersPerHour"`
}

// DefaultLimits mirrors the stock production thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizeUSD:  decimal.NewFromInt(1_000_000),
		MaxTotalExposureUSD: decimal.NewFromInt(10_000_000),
		MaxSingleAssetPct:   decimal.NewFromFloat(0.20),
		MaxDailyLossUSD:     decimal.NewFromInt(100_000),
		MaxDailyLossPct:     decimal.NewFromFloat(0.05),
		MaxOrderNotionalUSD: decimal.NewFromInt(500_000),
		MinOrderNotionalUSD: decimal.NewFromInt(1_000),
		MaxSlippageBps:      50,
		MaxOrdersPerMinute:  10,
		MaxOrdersPerHour:    100,
	}
}
