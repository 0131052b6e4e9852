// Package insider serves insider-trade records, either a fixed mock set or
// entries projected from the SEC EDGAR current-filings Atom feed.
package insider

import "context"

// Trade is one insider transaction as returned to clients.
type Trade struct {
	Symbol          string  `json:"symbol"`
	InsiderName     string  `json:"insiderName"`
	TransactionType string  `json:"transactionType"`
	Shares          int64   `json:"shares"`
	SharePrice      float64 `json:"sharePrice"`
	FilingDate      string  `json:"filingDate"`
	Link            string  `json:"link"`
}

// Provider returns the current list of trades.
type Provider interface {
	Trades(ctx context.Context) ([]Trade, error)
	Mode() string
}

// MockProvider returns a fixed set of trades.
type MockProvider struct{}

// Mode implements Provider.
func (MockProvider) Mode() string { return "mock" }

// Trades implements Provider. Each call returns a fresh slice.
func (MockProvider) Trades(ctx context.Context) ([]Trade, error) {
	return []Trade{
		{
			Symbol:          "TSLA",
			InsiderName:     "Elon Musk",
			TransactionType: "Buy",
			Shares:          10000,
			SharePrice:      720.50,
			FilingDate:      "2025-04-24",
			Link:            "https://www.sec.gov/Archives/edgar/data/0001318605/000089924325034567/xslF345X03/primary_doc.xml",
		},
		{
			Symbol:          "AAPL",
			InsiderName:     "Tim Cook",
			TransactionType: "Sell",
			Shares:          5000,
			SharePrice:      165.20,
			FilingDate:      "2025-04-23",
			Link:            "https://www.sec.gov/Archives/edgar/data/0000320193/000119312525034567/xslF345X03/primary_doc.xml",
		},
		{
			Symbol:          "NVDA",
			InsiderName:     "Jensen Huang",
			TransactionType: "Buy",
			Shares:          3000,
			SharePrice:      650.75,
			FilingDate:      "2025-04-22",
			Link:            "https://www.sec.gov/Archives/edgar/data/0001045810/000089924325034567/xslF345X03/primary_doc.xml",
		},
	}, nil
}
