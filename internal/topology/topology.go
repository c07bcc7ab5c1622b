// Package topology derives the connection graph shown on the network map.
// Connections are a visualization artifact computed from reported positions,
// never persisted: every request recomputes them from the current node set.
package topology

import (
	"sort"

	"github.com/elicharlese/ThePublic-sub000/internal/geo"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

const (
	// DefaultMapThresholdKm is the maximum distance for a map edge.
	DefaultMapThresholdKm = 5
	// DefaultNeighborThresholdKm is the maximum distance for a neighbor.
	DefaultNeighborThresholdKm = 10
	// DefaultNeighborLimit caps a node's neighbor list.
	DefaultNeighborLimit = 10
)

// Connection is a derived edge between two nodes.
type Connection struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceKm float64 `json:"distance"`
	Strength   float64 `json:"strength"`
}

// Neighbor is a nearby active node as seen from a single node.
type Neighbor struct {
	NodeID         string  `json:"node_id"`
	Name           string  `json:"name"`
	DistanceKm     float64 `json:"distance"`
	SignalStrength float64 `json:"signal_strength"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	City           string  `json:"city"`
	Country        string  `json:"country"`
}

// BuildMapGraph connects every unordered pair of active nodes within
// thresholdKm. Each pair appears at most once and nodes never connect to
// themselves. Edge strength falls off linearly with distance.
func BuildMapGraph(nodes []models.Node, thresholdKm float64) []Connection {
	active := nodes[:0:0]
	for _, n := range nodes {
		if n.Status == models.StatusActive {
			active = append(active, n)
		}
	}

	var conns []Connection
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			d := geo.HaversineKm(
				geo.Point{Lat: active[i].Lat, Lng: active[i].Lng},
				geo.Point{Lat: active[j].Lat, Lng: active[j].Lng},
			)
			if d > thresholdKm {
				continue
			}
			conns = append(conns, Connection{
				From:       active[i].NodeID,
				To:         active[j].NodeID,
				DistanceKm: d,
				Strength:   clampStrength(100 - d*10),
			})
		}
	}
	return conns
}

// BuildNodeNeighbors returns the candidates within thresholdKm of node,
// sorted nearest first and truncated to limit. The node itself is excluded.
func BuildNodeNeighbors(node models.Node, candidates []models.Node, thresholdKm float64, limit int) []Neighbor {
	origin := geo.Point{Lat: node.Lat, Lng: node.Lng}

	var neighbors []Neighbor
	for _, c := range candidates {
		if c.NodeID == node.NodeID {
			continue
		}
		d := geo.HaversineKm(origin, geo.Point{Lat: c.Lat, Lng: c.Lng})
		if d > thresholdKm {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			NodeID:         c.NodeID,
			Name:           c.Name,
			DistanceKm:     d,
			SignalStrength: clampStrength(100 - d*2),
			Lat:            c.Lat,
			Lng:            c.Lng,
			City:           c.City,
			Country:        c.Country,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].DistanceKm < neighbors[j].DistanceKm
	})
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors
}

// CoverageAreaKm2 estimates the bounding-box coverage of the given nodes.
func CoverageAreaKm2(nodes []models.Node) float64 {
	points := make([]geo.Point, 0, len(nodes))
	for _, n := range nodes {
		points = append(points, geo.Point{Lat: n.Lat, Lng: n.Lng})
	}
	return geo.EstimateCoverageAreaKm2(points)
}

func clampStrength(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
