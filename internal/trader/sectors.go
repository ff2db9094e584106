package trader

// sectorUnknown is the bucket for tickers outside the curated map. Unknown
// tickers are tradeable but still count against that bucket's sector cap.
const sectorUnknown = "Unknown"

// sectorMap is the curated ticker universe with its sector classification.
// It doubles as the built-in candidate list for the analysis phase.
var sectorMap = map[string]string{
	// Tech
	"AAPL": "Tech",
	"MSFT": "Tech",
	"GOOG": "Tech",
	"META": "Tech",
	"NVDA": "Tech",
	"AMD":  "Tech",
	"INTC": "Tech",
	"CRM":  "Tech",
	"ORCL": "Tech",
	"CSCO": "Tech",

	// Finance
	"JPM":  "Finance",
	"BAC":  "Finance",
	"WFC":  "Finance",
	"GS":   "Finance",
	"MS":   "Finance",
	"C":    "Finance",
	"SCHW": "Finance",

	// Healthcare
	"JNJ":  "Healthcare",
	"PFE":  "Healthcare",
	"UNH":  "Healthcare",
	"ABBV": "Healthcare",
	"MRK":  "Healthcare",
	"LLY":  "Healthcare",

	// Consumer
	"AMZN": "Consumer",
	"TSLA": "Consumer",
	"WMT":  "Consumer",
	"HD":   "Consumer",
	"MCD":  "Consumer",
	"NKE":  "Consumer",
	"SBUX": "Consumer",
	"TGT":  "Consumer",

	// Energy
	"XOM": "Energy",
	"CVX": "Energy",
	"COP": "Energy",
	"SLB": "Energy",
	"OXY": "Energy",

	// Industrials
	"BA":  "Industrials",
	"CAT": "Industrials",
	"DE":  "Industrials",
	"GE":  "Industrials",
	"UPS": "Industrials",

	// Communication
	"DIS":   "Communication",
	"NFLX":  "Communication",
	"T":     "Communication",
	"VZ":    "Communication",
	"CMCSA": "Communication",

	// ETFs
	"SPY": "ETF",
	"QQQ": "ETF",
	"IWM": "ETF",
	"DIA": "ETF",
	"XLE": "ETF",
	"XLF": "ETF",
	"XLK": "ETF",
}

// SectorFor returns the sector for a ticker, or Unknown when the ticker is
// outside the curated universe.
func SectorFor(ticker string) string {
	if sector, ok := sectorMap[ticker]; ok {
		return sector
	}
	return sectorUnknown
}

// curatedTickers returns the built-in candidate universe.
func curatedTickers() []string {
	tickers := make([]string, 0, len(sectorMap))
	for ticker := range sectorMap {
		tickers = append(tickers, ticker)
	}
	return tickers
}
