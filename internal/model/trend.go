package model

// TrendPoint is the enforcement rate for one calendar month.
type TrendPoint struct {
	Period          string  `json:"period"`
	EnforcementRate float64 `json:"enforcement_rate"`
	Enforced        int     `json:"enforced"`
	Total           int     `json:"total"`
}

// TrendDirection describes how the latest period compares to the one before.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// TrendSummary condenses a trend series for a portfolio header.
type TrendSummary struct {
	Periods     int            `json:"periods"`
	Enforced    int            `json:"enforced"`
	Total       int            `json:"total"`
	OverallRate float64        `json:"overall_rate"`
	LatestRate  float64        `json:"latest_rate"`
	Delta       float64        `json:"delta"`
	Direction   TrendDirection `json:"direction"`
}
