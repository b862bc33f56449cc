// README: Shared identifiers and coordinates.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

// Place is a point with the human-readable address the rider typed.
type Place struct {
	Point
	Address string
}
