// Package googletest provides an in-process fake of the Google geocode,
// nearby-search and place-details endpoints for tests.
package googletest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// Place is a fixture served by the nearby and details endpoints.
type Place struct {
	PlaceID        string
	Name           string
	Lat            float64
	Lng            float64
	Vicinity       string
	BusinessStatus string
	Types          []string
	Rating         float64
	Phone          string
	Address        string
}

// Server is a fake places provider. Configure it before issuing requests.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Addresses maps a geocode query to its coordinate.
	Addresses map[string][2]float64

	// Places is returned, in order, by every nearby search with a valid location.
	Places []Place

	// GeocodeStatus, NearbyStatus and DetailsStatus override the HTTP status code of an endpoint.
	GeocodeStatus int
	NearbyStatus  int
	DetailsStatus int

	// FailDetails makes the details endpoint answer 500 for the listed ids.
	FailDetails map[string]bool

	requests []*url.URL
}

// NewServer starts a fake provider. Call Close when done.
func NewServer() *Server {
	s := &Server{
		Addresses:   map[string][2]float64{},
		FailDetails: map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode/json", s.geocode)
	mux.HandleFunc("/place/nearbysearch/json", s.nearby)
	mux.HandleFunc("/place/details/json", s.details)
	s.Server = httptest.NewServer(mux)
	return s
}

// GeocodeURL is the geocode endpoint of the fake.
func (s *Server) GeocodeURL() string { return s.URL + "/geocode/json" }

// NearbyURL is the nearby-search endpoint of the fake.
func (s *Server) NearbyURL() string { return s.URL + "/place/nearbysearch/json" }

// DetailsURL is the place-details endpoint of the fake.
func (s *Server) DetailsURL() string { return s.URL + "/place/details/json" }

// Requests returns the URLs received so far.
func (s *Server) Requests() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*url.URL, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the received URLs whose path matches.
func (s *Server) RequestsTo(path string) []*url.URL {
	var out []*url.URL
	for _, u := range s.Requests() {
		if u.Path == path {
			out = append(out, u)
		}
	}
	return out
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *r.URL
	s.requests = append(s.requests, &u)
}

func (s *Server) geocode(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	status := s.GeocodeStatus
	coord, ok := s.Addresses[r.URL.Query().Get("address")]
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if !ok {
		writeJSON(w, map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
		return
	}
	writeJSON(w, map[string]any{
		"status": "OK",
		"results": []any{
			map[string]any{
				"geometry": map[string]any{
					"location": map[string]any{"lat": coord[0], "lng": coord[1]},
				},
			},
		},
	})
}

func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	status := s.NearbyStatus
	fixtures := append([]Place(nil), s.Places...)
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	q := r.URL.Query()
	if q.Get("key") == "" || q.Get("location") == "" {
		writeJSON(w, map[string]any{"status": "INVALID_REQUEST", "results": []any{}})
		return
	}
	results := make([]any, 0, len(fixtures))
	for _, p := range fixtures {
		results = append(results, map[string]any{
			"place_id":        p.PlaceID,
			"name":            p.Name,
			"vicinity":        p.Vicinity,
			"business_status": p.BusinessStatus,
			"types":           p.Types,
			"geometry": map[string]any{
				"location": map[string]any{"lat": p.Lat, "lng": p.Lng},
			},
		})
	}
	apiStatus := "OK"
	if len(results) == 0 {
		apiStatus = "ZERO_RESULTS"
	}
	writeJSON(w, map[string]any{
		"status":          apiStatus,
		"results":         results,
		"next_page_token": "ignored-token",
	})
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	id := r.URL.Query().Get("place_id")
	s.mu.Lock()
	status := s.DetailsStatus
	fail := s.FailDetails[id]
	var found *Place
	for i := range s.Places {
		if s.Places[i].PlaceID == id {
			p := s.Places[i]
			found = &p
			break
		}
	}
	s.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if found == nil {
		writeJSON(w, map[string]any{"status": "NOT_FOUND"})
		return
	}
	writeJSON(w, map[string]any{
		"status": "OK",
		"result": map[string]any{
			"place_id":               found.PlaceID,
			"name":                   found.Name,
			"rating":                 found.Rating,
			"formatted_phone_number": found.Phone,
			"formatted_address":      found.Address,
		},
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
