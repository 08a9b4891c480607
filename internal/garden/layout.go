package garden

import (
	"fmt"

	"github.com/willowmere/gardener-core/internal/infrastructure/config"
)

// Layout is the immutable garden map built from configuration at boot.
//
// It holds every named station plus one implicit station per plant
// (station ID equal to the plant ID). Lookups are read-only after
// construction, so no locking is required.
type Layout struct {
	stations map[string]Station

	// patrolOrder is the station visiting order for idle rounds:
	// plant stations in configured order, then back to the dock.
	patrolOrder []string
}

// NewLayout builds a Layout from the configured stations and plants.
//
// Each plant gains an implicit station at its own location unless an
// explicit station with the same ID is configured. A dock station is
// required; movement tasks have nowhere to return to without one.
func NewLayout(stations []config.StationConfig, plants []config.PlantConfig) (*Layout, error) {
	l := &Layout{
		stations: make(map[string]Station, len(stations)+len(plants)),
	}

	for _, s := range stations {
		l.stations[s.ID] = Station{
			ID:       s.ID,
			Name:     s.Name,
			Location: Point{X: s.Location.X, Y: s.Location.Y},
		}
	}

	for _, p := range plants {
		if _, ok := l.stations[p.ID]; ok {
			// Explicit station config wins, but keep the plant link.
			st := l.stations[p.ID]
			st.PlantID = p.ID
			l.stations[p.ID] = st
		} else {
			l.stations[p.ID] = Station{
				ID:       p.ID,
				Name:     p.ID,
				Location: Point{X: p.Location.X, Y: p.Location.Y},
				PlantID:  p.ID,
			}
		}
		l.patrolOrder = append(l.patrolOrder, p.ID)
	}

	if _, ok := l.stations[StationDock]; !ok {
		return nil, fmt.Errorf("garden layout: no %q station configured", StationDock)
	}
	l.patrolOrder = append(l.patrolOrder, StationDock)

	return l, nil
}

// Station returns the station with the given ID.
func (l *Layout) Station(id string) (Station, bool) {
	s, ok := l.stations[id]
	return s, ok
}

// Stations returns all stations. Order is unspecified.
func (l *Layout) Stations() []Station {
	out := make([]Station, 0, len(l.stations))
	for _, s := range l.stations {
		out = append(out, s)
	}
	return out
}

// PatrolRoute returns the station IDs for one idle patrol round:
// every plant station in configured order, ending at the dock.
func (l *Layout) PatrolRoute() []string {
	route := make([]string, len(l.patrolOrder))
	copy(route, l.patrolOrder)
	return route
}
