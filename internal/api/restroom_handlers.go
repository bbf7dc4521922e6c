package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/auth"
	"github.com/JakeFAU/bathroom-buddy/internal/places"
	"github.com/JakeFAU/bathroom-buddy/internal/search"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

const msgRestroomNotFound = "restroom not found"

// Search rejection reasons recorded in metrics.
const (
	rejectEmptyQuery      = "empty_query"
	rejectInvalidLocation = "invalid_location"
)

// search runs the pipeline for ?q= and persists every non-blacklisted result
// on behalf of the caller.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := auth.FromContext(ctx)

	res, err := s.searcher.Run(ctx, r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		telemetry.ObserveSearchRejected(rejectEmptyQuery)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, search.ErrInvalidLocation):
		telemetry.ObserveSearchRejected(rejectInvalidLocation)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, r, "search failed", err)
		return
	}

	now := s.clock.Now()
	restrooms := make([]restroomDTO, 0, len(res.Details))
	saved := 0
	for _, d := range res.Details {
		blocked, err := s.repo.IsBlacklisted(ctx, d.PlaceID)
		if err != nil {
			s.internalError(w, r, "search failed", err)
			return
		}
		if blocked {
			continue
		}
		restroom := restroomFromDetail(d, res, principal.UserID, now)
		inserted, err := s.repo.SaveRestroom(ctx, restroom)
		if err != nil {
			s.internalError(w, r, "failed to save restroom", err)
			return
		}
		if inserted {
			saved++
		}
		restrooms = append(restrooms, toRestroomDTO(restroom))
	}
	telemetry.IncRestroomsSaved(saved)

	s.logger.Info("search served",
		zap.String("query", res.Query),
		zap.String("user_id", principal.UserID.String()),
		zap.Int("results", len(restrooms)),
		zap.Int("saved", saved),
	)
	writeJSON(w, http.StatusOK, searchDTO{
		Query:     res.Query,
		Location:  res.Location,
		Status:    res.Status,
		Count:     len(restrooms),
		Restrooms: restrooms,
	})
}

// restroomFromDetail joins a detail with its filtered place for coordinates.
func restroomFromDetail(d places.Detail, res search.Result, discoveredBy uuid.UUID, now time.Time) store.Restroom {
	restroom := store.Restroom{
		PlaceID:   d.PlaceID,
		Name:      d.Name,
		Address:   d.Address,
		Phone:     d.Phone,
		Rating:    d.Rating,
		CreatedAt: now,
	}
	if place, ok := res.PlaceFor(d.PlaceID); ok {
		restroom.Latitude = place.Location.Lat
		restroom.Longitude = place.Location.Lng
		if restroom.Address == "" {
			restroom.Address = place.Vicinity
		}
		if restroom.Name == "" {
			restroom.Name = place.Name
		}
	}
	if discoveredBy != uuid.Nil {
		restroom.DiscoveredBy = &discoveredBy
	}
	return restroom
}

func (s *Server) getRestroom(w http.ResponseWriter, r *http.Request) {
	restroom, err := s.repo.GetRestroom(r.Context(), chi.URLParam(r, "place_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgRestroomNotFound)
			return
		}
		s.internalError(w, r, "failed to load restroom", err)
		return
	}
	writeJSON(w, http.StatusOK, toRestroomDTO(restroom))
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	placeID := chi.URLParam(r, "place_id")
	err := s.repo.AddFavorite(r.Context(), store.Favorite{
		UserID:    principal.UserID,
		PlaceID:   placeID,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgRestroomNotFound)
			return
		}
		s.internalError(w, r, "failed to add favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place_id": placeID, "favorite": true})
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	placeID := chi.URLParam(r, "place_id")
	if err := s.repo.RemoveFavorite(r.Context(), principal.UserID, placeID); err != nil {
		s.internalError(w, r, "failed to remove favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place_id": placeID, "favorite": false})
}

type blacklistRequest struct {
	Name string `json:"name"`
}

// blacklist marks a place as having no public restroom. The body is optional;
// a stored restroom's name is used when none is given.
func (s *Server) blacklist(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	placeID := strings.TrimSpace(chi.URLParam(r, "place_id"))

	var req blacklistRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		restroom, err := s.repo.GetRestroom(r.Context(), placeID)
		switch {
		case err == nil:
			name = restroom.Name
		case !errors.Is(err, store.ErrNotFound):
			s.internalError(w, r, "failed to load restroom", err)
			return
		}
	}

	reporter := principal.UserID
	err := s.repo.BlacklistRestroom(r.Context(), store.BlacklistEntry{
		PlaceID:    placeID,
		Name:       name,
		ReportedBy: &reporter,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		s.internalError(w, r, "failed to blacklist restroom", err)
		return
	}
	s.logger.Info("restroom blacklisted",
		zap.String("place_id", placeID),
		zap.String("user_id", reporter.String()),
	)
	writeJSON(w, http.StatusOK, map[string]any{"place_id": placeID, "blacklisted": true})
}
