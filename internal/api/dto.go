package api

import (
	"time"

	"github.com/JakeFAU/bathroom-buddy/internal/places"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

type userDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// toUserDTO renders a user. The e-mail is only included for the account owner.
func toUserDTO(u store.User, withEmail bool) userDTO {
	dto := userDTO{ID: u.ID.String(), Name: u.Name, CreatedAt: u.CreatedAt}
	if withEmail {
		dto.Email = u.Email
	}
	return dto
}

type sessionDTO struct {
	User      userDTO   `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message,omitempty"`
}

type restroomDTO struct {
	PlaceID      string   `json:"place_id"`
	Name         string   `json:"name"`
	Address      string   `json:"address,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Latitude     float64  `json:"lat"`
	Longitude    float64  `json:"lng"`
	DiscoveredBy string   `json:"discovered_by,omitempty"`
}

func toRestroomDTO(r store.Restroom) restroomDTO {
	dto := restroomDTO{
		PlaceID:   r.PlaceID,
		Name:      r.Name,
		Address:   r.Address,
		Phone:     r.Phone,
		Rating:    r.Rating,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
	if r.DiscoveredBy != nil {
		dto.DiscoveredBy = r.DiscoveredBy.String()
	}
	return dto
}

func toRestroomDTOs(rs []store.Restroom) []restroomDTO {
	out := make([]restroomDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRestroomDTO(r))
	}
	return out
}

type searchDTO struct {
	Query     string            `json:"query"`
	Location  places.Coordinate `json:"location"`
	Status    string            `json:"status"`
	Count     int               `json:"count"`
	Restrooms []restroomDTO     `json:"restrooms"`
}

type favoritesDTO struct {
	User      userDTO       `json:"user"`
	Favorites []restroomDTO `json:"favorites"`
}
