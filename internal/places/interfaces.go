package places

import "context"

// Geocoder resolves free text to a coordinate. ok is false when the provider
// could not resolve the query; failures are never surfaced as errors.
type Geocoder interface {
	Resolve(ctx context.Context, query string) (coord Coordinate, ok bool)
}

// Searcher queries the nearby-search endpoint.
type Searcher interface {
	Search(ctx context.Context, at Coordinate, keyword string, mode Mode) SearchResponse
}

// DetailFetcher loads extended details for a list of place ids. Any failed
// fetch discards the whole batch.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, placeIDs []string, fields []string) []Detail
}

// Provider bundles the three endpoints of a places service.
type Provider interface {
	Geocoder
	Searcher
	DetailFetcher
}
