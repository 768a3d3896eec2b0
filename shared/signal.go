package shared

// Signal represents the discrete outcome of evaluating market indicators.
type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
)

// String stringifies the provided signal.
func (s Signal) String() string {
	switch s {
	case Hold:
		return "hold"
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Trend represents the directional state of a market.
type Trend int

const (
	Bearish Trend = -1
	Bullish Trend = 1
)

// String stringifies the provided trend.
func (t Trend) String() string {
	switch t {
	case Bearish:
		return "bearish"
	case Bullish:
		return "bullish"
	default:
		return "unknown"
	}
}
