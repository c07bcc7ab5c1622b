// Package geolocation resolves registrant IPs to a city/country when a node
// registration omits them.
package geolocation

import (
	"fmt"
	"strings"

	"github.com/ip2location/ip2location-go/v9"
	"github.com/sirupsen/logrus"
)

// Service wraps the IP2Location database. A nil *Service resolves nothing.
type Service struct {
	db *ip2location.DB
}

// Open loads the IP2Location database from dbPath.
func Open(dbPath string) (*Service, error) {
	db, err := ip2location.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load IP2Location DB from %s: %w", dbPath, err)
	}
	logrus.Info("IP2Location DB loaded successfully")
	return &Service{db: db}, nil
}

// Close releases the database.
func (s *Service) Close() {
	if s != nil && s.db != nil {
		s.db.Close()
	}
}

// Location is a resolved geolocation record.
type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Lookup resolves an IP address.
func (s *Service) Lookup(ip string) (*Location, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("geolocation database not initialized")
	}

	results, err := s.db.Get_all(ip)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup IP %s: %w", ip, err)
	}

	return &Location{
		Country:   results.Country_long,
		City:      results.City,
		Region:    results.Region,
		Latitude:  float64(results.Latitude),
		Longitude: float64(results.Longitude),
	}, nil
}

// Resolve implements the registry's GeoResolver contract.
func (s *Service) Resolve(ip string) (city, country string, ok bool) {
	loc, err := s.Lookup(ip)
	if err != nil {
		return "", "", false
	}
	return loc.City, loc.Country, loc.City != "" || loc.Country != ""
}

// String formats a location for logs.
func (l *Location) String() string {
	parts := []string{}
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if l.Region != "" {
		parts = append(parts, l.Region)
	}
	if l.Country != "" {
		parts = append(parts, l.Country)
	}
	return strings.Join(parts, ", ")
}
