// Package places defines the place types shared by the provider client, the
// search pipeline and the persistence layer.
package places

import (
	"fmt"
	"strconv"
)

// BusinessStatusOperational marks a place that is currently open for business.
const BusinessStatusOperational = "OPERATIONAL"

// Provider top-level status values the pipeline cares about.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusInvalidRequest = "INVALID_REQUEST"
)

// DefaultDetailFields is the field set requested from the details endpoint.
var DefaultDetailFields = []string{
	"name",
	"rating",
	"formatted_phone_number",
	"formatted_address",
	"place_id",
}

// Coordinate is a resolved latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the coordinate the way the nearby-search endpoint expects it,
// keeping full float precision.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Candidate is a raw nearby-search result.
type Candidate struct {
	PlaceID        string     `json:"place_id"`
	Name           string     `json:"name"`
	Location       Coordinate `json:"location"`
	Vicinity       string     `json:"vicinity,omitempty"`
	BusinessStatus string     `json:"business_status,omitempty"`
	Types          []string   `json:"types,omitempty"`
}

// FilteredPlace is a candidate that survived the category filter.
type FilteredPlace = Candidate

// Detail is the enriched record returned by the details endpoint.
type Detail struct {
	PlaceID string   `json:"place_id"`
	Name    string   `json:"name"`
	Rating  *float64 `json:"rating,omitempty"`
	Phone   string   `json:"formatted_phone_number,omitempty"`
	Address string   `json:"formatted_address,omitempty"`
}

// SearchResponse is what the nearby-search endpoint returned. A zero value
// means the call failed at the transport or HTTP level.
type SearchResponse struct {
	Status     string
	Candidates []Candidate
}

// Mode selects how the nearby search ranks results. The two strategies map to
// mutually exclusive query parameters.
type Mode struct {
	RankByDistance bool
	RadiusMeters   int
}

// DefaultRadiusMeters is used when a radius search is requested without a radius.
const DefaultRadiusMeters = 20000

// RankByDistance orders results by distance from the coordinate.
func RankByDistance() Mode {
	return Mode{RankByDistance: true}
}

// WithinRadius restricts results to a radius around the coordinate.
func WithinRadius(meters int) Mode {
	if meters <= 0 {
		meters = DefaultRadiusMeters
	}
	return Mode{RadiusMeters: meters}
}

// ParseMode maps a config value onto a Mode.
func ParseMode(name string, radiusMeters int) (Mode, error) {
	switch name {
	case "", "distance":
		return RankByDistance(), nil
	case "radius":
		return WithinRadius(radiusMeters), nil
	default:
		return Mode{}, fmt.Errorf("unknown search mode %q", name)
	}
}
