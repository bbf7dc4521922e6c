// Package search runs the restroom search pipeline: geocode, nearby search,
// category filter and detail fetch, in that order, for a single request.
package search

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/places"
	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

var (
	// ErrEmptyQuery is returned when the search text is blank.
	ErrEmptyQuery = errors.New("search query is required")
	// ErrInvalidLocation is returned when the provider rejects the location.
	ErrInvalidLocation = errors.New("invalid address or zip code")
)

// Stage names used for spans, logs and metrics.
const (
	StageGeocode = "geocode"
	StageNearby  = "nearby"
	StageFilter  = "filter"
	StageDetails = "details"
)

// DefaultKeyword is the nearby-search keyword used when none is configured.
const DefaultKeyword = "food store"

// Config tunes the pipeline.
type Config struct {
	Keyword      string
	Mode         places.Mode
	DetailFields []string
}

// Session holds the state of one search while it moves through the stages.
// A stage clears the fields it consumed once its output is in place.
type Session struct {
	Query      string
	Coordinate places.Coordinate
	Located    bool
	Status     string
	Candidates []places.Candidate
	Filtered   []places.FilteredPlace
	IDs        []string
	Details    []places.Detail
}

// Result is the outcome of a completed search.
type Result struct {
	Query    string
	Location places.Coordinate
	Status   string
	Filtered []places.FilteredPlace
	Details  []places.Detail
}

// Pipeline executes searches against a places provider. It keeps no
// per-search state and may be shared across requests.
type Pipeline struct {
	provider places.Provider
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Pipeline.
func New(provider places.Provider, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Keyword) == "" {
		cfg.Keyword = DefaultKeyword
	}
	if !cfg.Mode.RankByDistance && cfg.Mode.RadiusMeters <= 0 {
		cfg.Mode = places.RankByDistance()
	}
	if len(cfg.DetailFields) == 0 {
		cfg.DetailFields = places.DefaultDetailFields
	}
	return &Pipeline{provider: provider, cfg: cfg, logger: logger}
}

// Run executes every stage for query. A location the provider cannot resolve
// or rejects yields ErrInvalidLocation; transport failures yield an empty result.
func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.run")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", query))

	s := &Session{Query: query}
	if !p.Geocode(ctx, s) {
		span.SetStatus(codes.Error, ErrInvalidLocation.Error())
		return Result{Query: query, Status: s.Status}, ErrInvalidLocation
	}

	p.Nearby(ctx, s)
	switch s.Status {
	case places.StatusOK, places.StatusZeroResults, "":
	default:
		p.logger.Info("provider rejected location",
			zap.String("query", query),
			zap.String("status", s.Status),
		)
		span.SetStatus(codes.Error, ErrInvalidLocation.Error())
		return Result{Query: query, Location: s.Coordinate, Status: s.Status}, ErrInvalidLocation
	}

	p.Filter(ctx, s)
	p.FetchDetails(ctx, s)

	p.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("filtered", len(s.Filtered)),
		zap.Int("details", len(s.Details)),
	)
	return Result{
		Query:    query,
		Location: s.Coordinate,
		Status:   s.Status,
		Filtered: s.Filtered,
		Details:  s.Details,
	}, nil
}

// Geocode resolves the session query. On failure the session status is set to
// INVALID_REQUEST and false is returned.
func (p *Pipeline) Geocode(ctx context.Context, s *Session) bool {
	ctx, span := telemetry.Tracer().Start(ctx, "search."+StageGeocode)
	defer span.End()

	coord, ok := p.provider.Resolve(ctx, s.Query)
	s.Located = ok
	if !ok {
		s.Status = places.StatusInvalidRequest
		telemetry.ObserveStageResults(StageGeocode, 0)
		return false
	}
	s.Coordinate = coord
	span.SetAttributes(
		attribute.Float64("search.lat", coord.Lat),
		attribute.Float64("search.lng", coord.Lng),
	)
	telemetry.ObserveStageResults(StageGeocode, 1)
	return true
}

// Nearby runs the nearby search around the session coordinate.
func (p *Pipeline) Nearby(ctx context.Context, s *Session) {
	ctx, span := telemetry.Tracer().Start(ctx, "search."+StageNearby)
	defer span.End()

	resp := p.provider.Search(ctx, s.Coordinate, p.cfg.Keyword, p.cfg.Mode)
	s.Status = resp.Status
	s.Candidates = resp.Candidates
	span.SetAttributes(
		attribute.String("search.status", resp.Status),
		attribute.Int("search.candidates", len(resp.Candidates)),
	)
	telemetry.ObserveStageResults(StageNearby, len(resp.Candidates))
}

// Filter keeps the candidates likely to offer a public restroom and clears
// the raw candidate list.
func (p *Pipeline) Filter(ctx context.Context, s *Session) {
	_, span := telemetry.Tracer().Start(ctx, "search."+StageFilter)
	defer span.End()

	s.Filtered, s.IDs = places.Filter(s.Candidates)
	s.Candidates = nil
	span.SetAttributes(attribute.Int("search.filtered", len(s.Filtered)))
	telemetry.ObserveStageResults(StageFilter, len(s.Filtered))
}

// FetchDetails loads details for the filtered ids and clears the id list.
func (p *Pipeline) FetchDetails(ctx context.Context, s *Session) {
	ctx, span := telemetry.Tracer().Start(ctx, "search."+StageDetails)
	defer span.End()

	if len(s.IDs) > 0 {
		s.Details = p.provider.FetchDetails(ctx, s.IDs, p.cfg.DetailFields)
		if s.Details == nil {
			span.SetStatus(codes.Error, "detail batch discarded")
		}
	}
	s.IDs = nil
	span.SetAttributes(attribute.Int("search.details", len(s.Details)))
	telemetry.ObserveStageResults(StageDetails, len(s.Details))
}

// PlaceFor returns the filtered place with the given id.
func (r Result) PlaceFor(placeID string) (places.FilteredPlace, bool) {
	for _, f := range r.Filtered {
		if f.PlaceID == placeID {
			return f, true
		}
	}
	return places.FilteredPlace{}, false
}
