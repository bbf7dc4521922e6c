package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/bathroom-buddy/internal/auth"
	"github.com/JakeFAU/bathroom-buddy/internal/config"
	idgen "github.com/JakeFAU/bathroom-buddy/internal/id/uuid"
	"github.com/JakeFAU/bathroom-buddy/internal/places/google"
	"github.com/JakeFAU/bathroom-buddy/internal/places/google/googletest"
	"github.com/JakeFAU/bathroom-buddy/internal/policy/ratelimit"
	"github.com/JakeFAU/bathroom-buddy/internal/search"
	"github.com/JakeFAU/bathroom-buddy/internal/storage/memory"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := h.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "public, max-age=0", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	require.Equal(t, "0", rec.Header().Get("Expires"))

	rec = h.do(http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bathroom-buddy")

	rec = h.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ReadyzReportsRepositoryFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Repo = pingFailRepo{Store: memory.New()}
	})

	rec := h.do(http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_SignupAndLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/signup", `{"name":" Al ","email":"AL@Example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created sessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "Al", created.User.Name)
	require.Equal(t, "al@example.com", created.User.Email)
	require.NotEmpty(t, created.Token)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.DefaultCookieName, cookies[0].Name)

	stored, err := h.repo.GetUserByEmail(context.Background(), "al@example.com")
	require.NoError(t, err)
	require.NotEqual(t, "secret", stored.PasswordHash)

	rec = h.do(http.MethodPost, "/v1/signup", `{"name":"Other","email":"al@example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"error":"Email already exists"}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/login", `{"email":"al@example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.Equal(t, "Hello, Al!", session.Message)
	require.Equal(t, created.User.ID, session.User.ID)

	for _, body := range []string{
		`{"email":"al@example.com","password":"wrong-password"}`,
		`{"email":"nobody@example.com","password":"secret"}`,
	} {
		rec = h.do(http.MethodPost, "/v1/login", body, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, body)
		require.JSONEq(t, `{"error":"Invalid credentials."}`, rec.Body.String())
	}
}

func TestServer_SignupValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/signup", `{"name":"","email":"nope","password":"123"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "This field is required.", body.Fields["name"])
	require.Equal(t, "Invalid email address.", body.Fields["email"])
	require.Equal(t, "Field must be at least 6 characters long.", body.Fields["password"])

	rec = h.do(http.MethodPost, "/v1/signup", `not json`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/v1/login", `{"email":"al@example.com","password":"123"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RejectsPasswordsBcryptCannotHash(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	long := strings.Repeat("a", 73)

	rec := h.do(http.MethodPost, "/v1/signup", `{"name":"Ann","email":"ann@example.com","password":"`+long+`"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Field must be at most 72 bytes long.", body.Fields["password"])

	_, token := h.signup(t, "al@example.com")
	rec = h.do(http.MethodPut, "/v1/users/me", `{"name":"Al","email":"al@example.com","password":"`+long+`"}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "at most 72 bytes")

	rec = h.do(http.MethodPost, "/v1/signup", `{"name":"Ann","email":"ann@example.com","password":"`+long[1:]+`"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_ProtectedRoutesRequireSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/search?q=10001"},
		{http.MethodGet, "/v1/users/me"},
		{http.MethodDelete, "/v1/users/me"},
		{http.MethodPost, "/v1/restrooms/cafe-1/favorite"},
		{http.MethodPost, "/v1/restrooms/cafe-1/blacklist"},
	} {
		rec := h.do(tc.method, tc.path, "", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		require.JSONEq(t, `{"error":"Access unauthorized."}`, rec.Body.String())
	}

	rec := h.do(http.MethodGet, "/v1/users/me", "", "not-a-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SessionCookieAuthenticates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/signup", `{"name":"Al","email":"al@example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	require.Contains(t, me.Body.String(), "al@example.com")

	rec = h.do(http.MethodPost, "/v1/logout", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"You've been logged out"}`, rec.Body.String())
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	require.Empty(t, cleared[0].Value)
	require.Negative(t, cleared[0].MaxAge)
}

func TestServer_SearchPersistsRestrooms(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	userID, token := h.signup(t, "al@example.com")

	rec := h.do(http.MethodGet, "/v1/search?q=10001", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var res searchDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "10001", res.Query)
	require.Equal(t, "OK", res.Status)
	require.InDelta(t, 40.7506, res.Location.Lat, 1e-9)
	require.Equal(t, 2, res.Count)
	require.Equal(t, "cafe-1", res.Restrooms[0].PlaceID)
	require.Equal(t, "lib-1", res.Restrooms[1].PlaceID)

	cafe, err := h.repo.GetRestroom(context.Background(), "cafe-1")
	require.NoError(t, err)
	require.Equal(t, "Corner Cafe", cafe.Name)
	require.Equal(t, "(212) 555-0101", cafe.Phone)
	require.InDelta(t, 40.751, cafe.Latitude, 1e-9)
	require.InDelta(t, -73.998, cafe.Longitude, 1e-9)
	require.NotNil(t, cafe.Rating)
	require.InDelta(t, 4.4, *cafe.Rating, 1e-9)
	require.NotNil(t, cafe.DiscoveredBy)
	require.Equal(t, userID, cafe.DiscoveredBy.String())

	_, err = h.repo.GetRestroom(context.Background(), "atm-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	rec = h.do(http.MethodGet, "/v1/restrooms/lib-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Branch Library")

	rec = h.do(http.MethodGet, "/v1/restrooms/unknown", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SearchKeepsFirstDiscoverer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	firstID, first := h.signup(t, "first@example.com")
	_, second := h.signup(t, "second@example.com")

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/search?q=10001", "", first).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/search?q=10001", "", second).Code)

	cafe, err := h.repo.GetRestroom(context.Background(), "cafe-1")
	require.NoError(t, err)
	require.Equal(t, firstID, cafe.DiscoveredBy.String())
}

func TestServer_SearchErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, token := h.signup(t, "al@example.com")

	rec := h.do(http.MethodGet, "/v1/search?q=%20%20", "", token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"search query is required"}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/search?q=???invalid???", "", token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid address or zip code"}`, rec.Body.String())
	require.Empty(t, h.places.RequestsTo("/place/nearbysearch/json"))
}

func TestServer_SearchProviderOutageReturnsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.places.NearbyStatus = http.StatusInternalServerError
	_, token := h.signup(t, "al@example.com")

	rec := h.do(http.MethodGet, "/v1/search?q=10001", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var res searchDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Zero(t, res.Count)
	require.Empty(t, res.Restrooms)
}

func TestServer_BlacklistHidesRestroom(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, token := h.signup(t, "al@example.com")

	rec := h.do(http.MethodPost, "/v1/restrooms/lib-1/blacklist", `{"name":"Branch Library"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"place_id":"lib-1","blacklisted":true}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/search?q=10001", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var res searchDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 1, res.Count)
	require.Equal(t, "cafe-1", res.Restrooms[0].PlaceID)

	_, err := h.repo.GetRestroom(context.Background(), "lib-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	rec = h.do(http.MethodPost, "/v1/restrooms/cafe-1/blacklist", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	blocked, err := h.repo.IsBlacklisted(context.Background(), "cafe-1")
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestServer_Favorites(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	userID, token := h.signup(t, "al@example.com")
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/search?q=10001", "", token).Code)

	rec := h.do(http.MethodPost, "/v1/restrooms/cafe-1/favorite", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"place_id":"cafe-1","favorite":true}`, rec.Body.String())
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/restrooms/cafe-1/favorite", "", token).Code)

	rec = h.do(http.MethodPost, "/v1/restrooms/unknown/favorite", "", token)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/users/"+userID+"/favorites", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var favs favoritesDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &favs))
	require.Equal(t, "Al", favs.User.Name)
	require.Empty(t, favs.User.Email)
	require.Len(t, favs.Favorites, 1)
	require.Equal(t, "cafe-1", favs.Favorites[0].PlaceID)

	rec = h.do(http.MethodDelete, "/v1/restrooms/cafe-1/favorite", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/v1/users/"+userID+"/favorites", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &favs))
	require.Empty(t, favs.Favorites)

	require.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/users/not-a-uuid/favorites", "", "").Code)
	require.Equal(t, http.StatusNotFound,
		h.do(http.MethodGet, "/v1/users/0190a1b2-0000-7000-8000-000000000000/favorites", "", "").Code)
}

func TestServer_EditAndDeleteAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, token := h.signup(t, "al@example.com")
	_, _ = h.signup(t, "taken@example.com")

	rec := h.do(http.MethodPut, "/v1/users/me", `{"name":"Alice","email":"alice@example.com","password":"newsecret"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "alice@example.com")

	rec = h.do(http.MethodPost, "/v1/login", `{"email":"alice@example.com","password":"newsecret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPut, "/v1/users/me", `{"name":"Alice","email":"taken@example.com","password":"newsecret"}`, token)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPut, "/v1/users/me", `{"name":"","email":"alice@example.com","password":"newsecret"}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodDelete, "/v1/users/me", "", token)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)

	rec = h.do(http.MethodGet, "/v1/users/me", "", token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SearchRateLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(d *Deps) {
		d.Config.RateLimit = config.RateLimitConfig{Enabled: true, SearchRPS: 1.0 / 3600, SearchBurst: 1}
		d.Limiter = ratelimit.New(ratelimit.Config{RPS: 1.0 / 3600, Burst: 1})
	})
	_, alice := h.signup(t, "alice@example.com")
	_, bob := h.signup(t, "bob@example.com")

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/search?q=10001", "", alice).Code)
	rec := h.do(http.MethodGet, "/v1/search?q=10001", "", alice)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/search?q=10001", "", bob).Code)
}

// --- helpers/fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one millisecond per call so ordering by creation time is stable.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type pingFailRepo struct {
	*memory.Store
}

func (pingFailRepo) Ping(context.Context) error { return errors.New("db down") }

type harness struct {
	server *Server
	repo   store.Repository
	places *googletest.Server
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()

	places := googletest.NewServer()
	t.Cleanup(places.Close)
	places.Addresses["10001"] = [2]float64{40.7506, -73.9972}
	places.Places = []googletest.Place{
		{
			PlaceID: "cafe-1", Name: "Corner Cafe", BusinessStatus: "OPERATIONAL",
			Types: []string{"cafe", "food"}, Lat: 40.751, Lng: -73.998,
			Rating: 4.4, Phone: "(212) 555-0101", Address: "1 W 30th St, New York, NY",
		},
		{
			PlaceID: "atm-1", Name: "Cash Point", BusinessStatus: "OPERATIONAL",
			Types: []string{"atm", "finance"}, Lat: 40.752, Lng: -73.996,
		},
		{
			PlaceID: "lib-1", Name: "Branch Library", BusinessStatus: "OPERATIONAL",
			Types: []string{"library"}, Lat: 40.749, Lng: -73.995,
			Rating: 4.8, Address: "2 W 31st St, New York, NY",
		},
	}

	client, err := google.New(google.Config{
		APIKey:     "test-key",
		GeocodeURL: places.GeocodeURL(),
		NearbyURL:  places.NearbyURL(),
		DetailsURL: places.DetailsURL(),
	}, zap.NewNop())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	deps := Deps{
		Repo:     memory.New(),
		Searcher: search.New(client, search.Config{}, zap.NewNop()),
		Hasher:   auth.NewHasher(bcrypt.MinCost),
		IDs:      idgen.New(),
		Clock:    clock,
		Config: config.Config{
			Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		},
		Logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	tokens, err := auth.NewTokens("test-secret", time.Hour, clock)
	require.NoError(t, err)
	deps.Sessions = auth.NewSessions(tokens, deps.Repo, auth.CookieConfig{}, zap.NewNop())

	return &harness{server: NewServer(deps), repo: deps.Repo, places: places}
}

// do issues a request; a non-empty token is sent as a bearer credential.
func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

// signup registers a user named Al and returns its id and session token.
func (h *harness) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	rec := h.do(http.MethodPost, "/v1/signup", `{"name":"Al","email":"`+email+`","password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session sessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.User.ID, session.Token
}
