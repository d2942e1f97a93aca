package gateway

import "time"

// Quote is a single real-time (or last-traded) price point.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	AsOf          time.Time `json:"as_of"`
}

// CompanyProfile is static-ish issuer metadata.
type CompanyProfile struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Industry  string `json:"industry"`
	ListedOn  string `json:"listed_on"`
	ParValue  float64 `json:"par_value"`
}

// FinancialStatement is the shared shape for income-statement and
// balance-sheet artifacts; LineItems keys are statement-specific (e.g.
// "revenue", "net_income" or "total_assets", "total_equity").
type FinancialStatement struct {
	Symbol    string             `json:"symbol"`
	Period    string             `json:"period"` // e.g. "2026Q1"
	LineItems map[string]float64 `json:"line_items"`
}

// Bar is one day of OHLCV trading data.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DailyTrading is a window of historical bars for one symbol.
type DailyTrading struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}
