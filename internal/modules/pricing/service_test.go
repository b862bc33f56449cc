package pricing

import "testing"

func TestService_Estimate(t *testing.T) {
	svc := NewService(DefaultRate)

	tests := []struct {
		name      string
		distanceM int
		want      int64
	}{
		{name: "zero distance", distanceM: 0, want: 0},
		{name: "negative distance", distanceM: -500, want: 0},
		{name: "one km", distanceM: 1000, want: 150},
		{name: "rounds down", distanceM: 1234, want: 185},
		{name: "sub-cent fraction", distanceM: 6, want: 0},
		{name: "long trip", distanceM: 42195, want: 6329},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Estimate(tt.distanceM)
			if got.Amount != tt.want {
				t.Errorf("Estimate(%d) = %d, want %d", tt.distanceM, got.Amount, tt.want)
			}
			if got.Currency != "USD" {
				t.Errorf("currency = %q, want USD", got.Currency)
			}
		})
	}
}

func TestService_EstimateCustomRate(t *testing.T) {
	svc := NewService(Rate{PerKmCents: 3200})
	got := svc.Estimate(2500)
	if got.Amount != 8000 {
		t.Fatalf("Estimate(2500) = %d, want 8000", got.Amount)
	}
	if got.Currency != DefaultRate.Currency {
		t.Fatalf("empty currency should fall back to %s, got %q", DefaultRate.Currency, got.Currency)
	}
}
