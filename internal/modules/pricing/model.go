// README: Distance-based fare rate.
package pricing

// Rate charges PerKmCents minor currency units per kilometre of route distance.
type Rate struct {
	PerKmCents int64
	Currency   string
}

// DefaultRate is 1.50 per km in USD.
var DefaultRate = Rate{PerKmCents: 150, Currency: "USD"}
