// Package garden models the physical layout of the garden: 2D locations,
// named stations (plant beds, dock, water tank), and patrol route
// construction for the rover's idle rounds.
package garden
