// Package google implements places.Provider on top of the Google Maps web services.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/places"
	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

const (
	defaultGeocodeURL  = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultNearbyURL   = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	defaultDetailsURL  = "https://maps.googleapis.com/maps/api/place/details/json"
	defaultHTTPTimeout = 10 * time.Second
)

// Stage labels used for logs and metrics.
const (
	stageGeocode = "geocode"
	stageNearby  = "nearby"
	stageDetails = "details"
)

// Config controls endpoints and transport for the client.
type Config struct {
	APIKey     string
	GeocodeURL string
	NearbyURL  string
	DetailsURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the geocode, nearby-search and place-details endpoints.
// It holds no per-search state and is safe for concurrent use.
type Client struct {
	apiKey     string
	geocodeURL string
	nearbyURL  string
	detailsURL string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ places.Provider = (*Client)(nil)

// New constructs a Client. An API key is mandatory.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("places api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		geocodeURL: valueOrDefault(cfg.GeocodeURL, defaultGeocodeURL),
		nearbyURL:  valueOrDefault(cfg.NearbyURL, defaultNearbyURL),
		detailsURL: valueOrDefault(cfg.DetailsURL, defaultDetailsURL),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Resolve geocodes an address or postal code. Any failure yields ok=false.
func (c *Client) Resolve(ctx context.Context, query string) (places.Coordinate, bool) {
	params := url.Values{}
	params.Set("address", query)

	var payload geocodeResponse
	if !c.get(ctx, stageGeocode, c.geocodeURL, params, isGeocodeSuccess, &payload) {
		return places.Coordinate{}, false
	}
	if len(payload.Results) == 0 {
		c.logger.Debug("geocode returned no results",
			zap.String("query", query),
			zap.String("status", payload.Status),
		)
		return places.Coordinate{}, false
	}
	loc := payload.Results[0].Geometry.Location
	if loc.Lat == nil || loc.Lng == nil {
		c.logger.Warn("geocode result missing coordinate", zap.String("query", query))
		return places.Coordinate{}, false
	}
	return places.Coordinate{Lat: *loc.Lat, Lng: *loc.Lng}, true
}

// Search runs one nearby search. Pagination tokens in the response are ignored.
func (c *Client) Search(
	ctx context.Context,
	at places.Coordinate,
	keyword string,
	mode places.Mode,
) places.SearchResponse {
	params := url.Values{}
	params.Set("location", at.String())
	params.Set("keyword", keyword)
	if mode.RankByDistance {
		params.Set("rankby", "distance")
	} else {
		radius := mode.RadiusMeters
		if radius <= 0 {
			radius = places.DefaultRadiusMeters
		}
		params.Set("radius", strconv.Itoa(radius))
	}

	var payload nearbyResponse
	if !c.get(ctx, stageNearby, c.nearbyURL, params, isPlacesSuccess, &payload) {
		return places.SearchResponse{}
	}

	candidates := make([]places.Candidate, 0, len(payload.Results))
	for _, r := range payload.Results {
		candidates = append(candidates, r.toCandidate())
	}
	return places.SearchResponse{Status: payload.Status, Candidates: candidates}
}

// FetchDetails loads details for every id in order. The first failure discards
// everything fetched so far and returns nil.
func (c *Client) FetchDetails(ctx context.Context, placeIDs []string, fields []string) []places.Detail {
	if len(fields) == 0 {
		fields = places.DefaultDetailFields
	}
	details := make([]places.Detail, 0, len(placeIDs))
	for _, id := range placeIDs {
		detail, err := c.fetchDetail(ctx, id, fields)
		if err != nil {
			c.logger.Warn("detail fetch failed; discarding batch",
				zap.String("place_id", id),
				zap.Int("discarded", len(details)),
				zap.Error(err),
			)
			return nil
		}
		details = append(details, detail)
	}
	return details
}

func (c *Client) fetchDetail(ctx context.Context, placeID string, fields []string) (places.Detail, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", strings.Join(fields, ","))

	var payload detailsResponse
	if !c.get(ctx, stageDetails, c.detailsURL, params, isPlacesSuccess, &payload) {
		return places.Detail{}, fmt.Errorf("details request for %s failed", placeID)
	}
	if payload.Result == nil {
		return places.Detail{}, fmt.Errorf("details response for %s has no result (status %q)", placeID, payload.Status)
	}
	detail := payload.Result.toDetail()
	if detail.PlaceID == "" {
		detail.PlaceID = placeID
	}
	return detail, nil
}

// get performs one GET with the api key attached and decodes the JSON body
// into out. It reports false on any transport, status or decode failure.
func (c *Client) get(
	ctx context.Context,
	stage string,
	endpoint string,
	params url.Values,
	success func(int) bool,
	out any,
) bool {
	start := time.Now()
	params.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Error("build provider request failed", zap.String("stage", stage), zap.Error(err))
		telemetry.ObserveProviderCall(stage, telemetry.OutcomeTransportError, time.Since(start))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("provider request failed", zap.String("stage", stage), zap.Error(err))
		telemetry.ObserveProviderCall(stage, telemetry.OutcomeTransportError, time.Since(start))
		return false
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close provider response body", zap.Error(cerr))
		}
	}()

	if !success(resp.StatusCode) {
		c.logger.Warn("provider returned unsuccessful status",
			zap.String("stage", stage),
			zap.Int("status_code", resp.StatusCode),
		)
		telemetry.ObserveProviderCall(stage, telemetry.OutcomeHTTPError, time.Since(start))
		return false
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("decode provider response failed", zap.String("stage", stage), zap.Error(err))
		telemetry.ObserveProviderCall(stage, telemetry.OutcomeDecodeError, time.Since(start))
		return false
	}

	telemetry.ObserveProviderCall(stage, telemetry.OutcomeOK, time.Since(start))
	return true
}

// isGeocodeSuccess accepts the full 2xx range, 299 included.
func isGeocodeSuccess(code int) bool {
	return code >= 200 && code <= 299
}

// isPlacesSuccess accepts 200-249 for the nearby and details endpoints.
func isPlacesSuccess(code int) bool {
	return code >= 200 && code <= 249
}

func valueOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
