package history

import "github.com/finquest-app/finquest/internal/domain"

// Built-in categories.
const (
	CategoryETF  domain.Category = "etf"
	CategoryBTC  domain.Category = "btc"
	CategoryGold domain.Category = "gold"
)

// builtin holds rounded calendar-year returns in percent.
var builtin = map[domain.Category]Series{
	// S&P 500 total return
	CategoryETF: {
		Category:  CategoryETF,
		StartYear: 2000,
		AnnualReturns: []float64{
			-9.1, -11.9, -22.1, 28.7, 10.9, 4.9, 15.8, 5.5, -37.0, 26.5,
			15.1, 2.1, 16.0, 32.4, 13.7, 1.4, 12.0, 21.8, -4.4, 31.5,
			18.4, 28.7, -18.1, 26.3,
		},
	},
	// Bitcoin, USD close to close
	CategoryBTC: {
		Category:  CategoryBTC,
		StartYear: 2011,
		AnnualReturns: []float64{
			1473, 186, 5507, -58, 35, 125, 1331, -73, 95, 301,
			60, -64, 156,
		},
	},
	// Gold spot, USD
	CategoryGold: {
		Category:  CategoryGold,
		StartYear: 2000,
		AnnualReturns: []float64{
			-5.4, 0.7, 24.7, 19.6, 5.2, 18.2, 23.2, 31.6, 4.3, 25.0,
			29.5, 10.1, 7.1, -28.3, -1.5, -10.4, 8.6, 13.1, -1.6, 18.3,
			25.1, -3.6, -0.3, 13.1,
		},
	},
}
