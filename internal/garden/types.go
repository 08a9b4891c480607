package garden

import "math"

// Point is a 2D grid location in the garden coordinate frame (metres from
// the dock origin).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the straight-line distance between two points.
func (p Point) DistanceTo(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Well-known station IDs. Every layout has a dock; a tank station is
// present when the refill point is separate from the dock.
const (
	StationDock = "dock"
	StationTank = "tank"
)

// Station is a named destination for movement tasks: a plant bed, the
// charging dock, or the water tank.
type Station struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location Point  `json:"location"`

	// PlantID links a station to the plant growing there, empty for
	// service stations (dock, tank).
	PlantID string `json:"plant_id,omitempty"`
}
