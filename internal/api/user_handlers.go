package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/auth"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

const (
	msgEmailExists        = "Email already exists"
	msgInvalidCredentials = "Invalid credentials."
	msgLoggedOut          = "You've been logged out"
	msgUserNotFound       = "user not found"
)

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var form auth.Signup
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form = form.Normalize()
	if !s.validForm(w, form.Validate()) {
		return
	}

	hash, err := s.hasher.Hash(form.Password)
	if err != nil {
		s.internalError(w, r, "failed to create user", err)
		return
	}
	id, err := s.ids.NewUserID()
	if err != nil {
		s.internalError(w, r, "failed to create user", err)
		return
	}
	user := store.User{
		ID:           id,
		Name:         form.Name,
		Email:        form.Email,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, msgEmailExists)
			return
		}
		s.internalError(w, r, "failed to create user", err)
		return
	}

	s.startSession(w, r, http.StatusCreated, user, "")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var form auth.Login
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form.Email = auth.NormalizeEmail(form.Email)
	if !s.validForm(w, form.Validate()) {
		return
	}

	user, err := s.repo.GetUserByEmail(r.Context(), form.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		s.internalError(w, r, "failed to log in", err)
		return
	}
	if err := s.hasher.Check(user.PasswordHash, form.Password); err != nil {
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	s.startSession(w, r, http.StatusOK, user, "Hello, "+user.Name+"!")
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, status int, user store.User, msg string) {
	token, expires, err := s.sessions.Login(w, user)
	if err != nil {
		s.internalError(w, r, "failed to start session", err)
		return
	}
	writeJSON(w, status, sessionDTO{
		User:      toUserDTO(user, true),
		Token:     token,
		ExpiresAt: expires,
		Message:   msg,
	})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.Logout(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": msgLoggedOut})
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	user, err := s.repo.GetUser(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		s.internalError(w, r, "failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, true))
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	var form auth.Signup
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	form = form.Normalize()
	if !s.validForm(w, form.Validate()) {
		return
	}

	user, err := s.repo.GetUser(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		s.internalError(w, r, "failed to load user", err)
		return
	}
	hash, err := s.hasher.Hash(form.Password)
	if err != nil {
		s.internalError(w, r, "failed to update user", err)
		return
	}
	user.Name = form.Name
	user.Email = form.Email
	user.PasswordHash = hash

	if err := s.repo.UpdateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, msgEmailExists)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, msgUserNotFound)
		default:
			s.internalError(w, r, "failed to update user", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user, true))
}

func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	if err := s.repo.DeleteUser(r.Context(), principal.UserID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, r, "failed to delete user", err)
		return
	}
	s.sessions.Logout(w)
	s.logger.Info("user deleted", zap.String("user_id", principal.UserID.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	user, err := s.repo.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		s.internalError(w, r, "failed to load user", err)
		return
	}
	favorites, err := s.repo.ListFavorites(r.Context(), userID, store.DefaultFavoritesLimit)
	if err != nil {
		s.internalError(w, r, "failed to list favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesDTO{
		User:      toUserDTO(user, false),
		Favorites: toRestroomDTOs(favorites),
	})
}

// validForm writes a 400 for validation failures and reports whether the form passed.
func (s *Server) validForm(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var fe auth.FieldErrors
	if errors.As(err, &fe) {
		writeFieldErrors(w, fe)
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}
