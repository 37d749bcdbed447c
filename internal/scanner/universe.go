package scanner

// DefaultUniverse is the curated list of liquid large caps, volatile growth
// names and sector ETFs scanned when no symbols are given
var DefaultUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "META", "AVGO",
	"ASML", "NFLX", "PYPL", "PEP", "COST", "AZO", "NKE", "MCD",
	"BA", "GS", "JPM", "BAC", "C", "WFC", "USB", "PNC",
	"AMD", "QCOM", "INTC", "MU", "ADBE", "CRM", "INTU", "SNPS",
	"UBER", "LYFT", "DASH", "ROKU", "SPOT", "ZM", "COIN",
	"ARKK", "MSTR", "MARA", "CLSK", "HUT", "RIOT",
	"XPEV", "NIO", "LI", "BILI", "BIDU", "JD", "PDD", "TCEHY",
	"LCID", "QS", "PLUG", "BLNK",
	"SPY", "QQQ", "IWM", "XLK", "XLC", "XLV", "XLF", "XLE",
}
