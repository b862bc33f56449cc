package location

import (
	"math"
	"testing"

	"kamuit/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 37.7749, Lng: -122.4194},
			b:         types.Point{Lat: 37.7749, Lng: -122.4194},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Ferry Building to Golden Gate Park (~8.6km)",
			a:         types.Point{Lat: 37.7955, Lng: -122.3937},
			b:         types.Point{Lat: 37.7694, Lng: -122.4862},
			wantKm:    8.6,
			tolerance: 1.0,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := distanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("distanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	if d1, d2 := distanceKm(a, b), distanceKm(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestValidPoint(t *testing.T) {
	cases := []struct {
		p    types.Point
		want bool
	}{
		{types.Point{Lat: 0, Lng: 0}, true},
		{types.Point{Lat: 90, Lng: 180}, true},
		{types.Point{Lat: 90.1, Lng: 0}, false},
		{types.Point{Lat: 0, Lng: -180.5}, false},
		{types.Point{Lat: math.NaN(), Lng: 0}, false},
	}
	for _, c := range cases {
		if got := validPoint(c.p); got != c.want {
			t.Errorf("validPoint(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestSortByDistance_Drivers(t *testing.T) {
	drivers := []NearbyDriver{
		{DriverID: "c", DistanceKm: 5.0},
		{DriverID: "a", DistanceKm: 1.0},
		{DriverID: "b", DistanceKm: 3.0},
	}

	sortByDistance(drivers, func(d NearbyDriver) float64 { return d.DistanceKm })

	if drivers[0].DriverID != "a" || drivers[1].DriverID != "b" || drivers[2].DriverID != "c" {
		t.Errorf("unexpected sort order: %v", drivers)
	}
}

func TestSortByDistance_StableOnTies(t *testing.T) {
	drivers := []NearbyDriver{
		{DriverID: "a", DistanceKm: 2.0},
		{DriverID: "b", DistanceKm: 1.0},
		{DriverID: "c", DistanceKm: 2.0},
	}
	sortByDistance(drivers, func(d NearbyDriver) float64 { return d.DistanceKm })
	if drivers[0].DriverID != "b" || drivers[1].DriverID != "a" || drivers[2].DriverID != "c" {
		t.Errorf("ties should keep input order: %v", drivers)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var drivers []NearbyDriver
	sortByDistance(drivers, func(d NearbyDriver) float64 { return d.DistanceKm })
}
