package google

import "github.com/JakeFAU/bathroom-buddy/internal/places"

type geocodeResponse struct {
	Status  string          `json:"status"`
	Results []geocodeResult `json:"results"`
}

type geocodeResult struct {
	FormattedAddress string          `json:"formatted_address"`
	Geometry         geocodeGeometry `json:"geometry"`
}

type geocodeGeometry struct {
	Location optionalLocation `json:"location"`
}

// optionalLocation keeps lat/lng as pointers so a missing component can be told
// apart from a zero coordinate.
type optionalLocation struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type nearbyResponse struct {
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	Results       []nearbyResult `json:"results"`
}

type nearbyResult struct {
	PlaceID        string         `json:"place_id"`
	Name           string         `json:"name"`
	Vicinity       string         `json:"vicinity"`
	BusinessStatus string         `json:"business_status"`
	Types          []string       `json:"types"`
	Geometry       placesGeometry `json:"geometry"`
}

type placesGeometry struct {
	Location placesLocation `json:"location"`
}

type placesLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (r nearbyResult) toCandidate() places.Candidate {
	return places.Candidate{
		PlaceID:        r.PlaceID,
		Name:           r.Name,
		Location:       places.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Vicinity:       r.Vicinity,
		BusinessStatus: r.BusinessStatus,
		Types:          append([]string(nil), r.Types...),
	}
}

type detailsResponse struct {
	Status string         `json:"status"`
	Result *detailsResult `json:"result"`
}

type detailsResult struct {
	PlaceID              string   `json:"place_id"`
	Name                 string   `json:"name"`
	Rating               *float64 `json:"rating"`
	FormattedPhoneNumber string   `json:"formatted_phone_number"`
	FormattedAddress     string   `json:"formatted_address"`
}

func (r detailsResult) toDetail() places.Detail {
	return places.Detail{
		PlaceID: r.PlaceID,
		Name:    r.Name,
		Rating:  r.Rating,
		Phone:   r.FormattedPhoneNumber,
		Address: r.FormattedAddress,
	}
}
