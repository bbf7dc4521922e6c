package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/bathroom-buddy/internal/store"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type userMap map[uuid.UUID]store.User

func (m userMap) GetUser(_ context.Context, id uuid.UUID) (store.User, error) {
	u, ok := m[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func newTokens(t *testing.T, clk Clock) *Tokens {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Hour, clk)
	require.NoError(t, err)
	return tokens
}

func TestHasherRoundTrip(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", hash)

	require.NoError(t, h.Check(hash, "hunter22"))
	require.ErrorIs(t, h.Check(hash, "wrong-password"), ErrInvalidCredentials)
	require.ErrorIs(t, h.Check("not-a-hash", "hunter22"), ErrInvalidCredentials)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)
}

func TestNewHasherClampsCost(t *testing.T) {
	t.Parallel()

	require.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	require.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
}

func TestTokensRoundTrip(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Unix(1700000000, 0)}
	tokens := newTokens(t, clk)
	id := uuid.New()

	token, expires, err := tokens.Issue(id)
	require.NoError(t, err)
	require.Equal(t, clk.now.Add(time.Hour), expires)

	got, err := tokens.Parse(token)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestTokensRejectExpired(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Unix(1700000000, 0)}
	tokens := newTokens(t, clk)
	token, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	clk.now = clk.now.Add(2 * time.Hour)
	_, err = tokens.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectForgedAndMalformed(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Unix(1700000000, 0)}
	tokens := newTokens(t, clk)

	other, err := NewTokens("other-secret", time.Hour, clk)
	require.NoError(t, err)
	forged, _, err := other.Issue(uuid.New())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.StandardClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: clk.now.Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", forged, unsigned} {
		_, err := tokens.Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestNewTokensValidation(t *testing.T) {
	t.Parallel()

	_, err := NewTokens("", time.Hour, &fixedClock{})
	require.Error(t, err)
	_, err = NewTokens("s", time.Hour, nil)
	require.Error(t, err)

	tokens, err := NewTokens("s", 0, &fixedClock{})
	require.NoError(t, err)
	require.Equal(t, DefaultTokenTTL, tokens.TTL())
}

func TestSessionsMiddlewareAttachesPrincipal(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Now()}
	tokens := newTokens(t, clk)
	user := store.User{ID: uuid.New(), Name: "alice", Email: "alice@example.com"}
	sessions := NewSessions(tokens, userMap{user.ID: user}, CookieConfig{}, zap.NewNop())

	var seen Principal
	var ok bool
	handler := sessions.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, ok = FromContext(r.Context())
	}))

	login := httptest.NewRecorder()
	token, _, err := sessions.Login(login, user)
	require.NoError(t, err)
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, DefaultCookieName, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
	require.Equal(t, Principal{UserID: user.ID, Name: "alice", Email: "alice@example.com"}, seen)

	ok = false
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
}

func TestSessionsMiddlewareIgnoresBadSessions(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{now: time.Now()}
	tokens := newTokens(t, clk)
	sessions := NewSessions(tokens, userMap{}, CookieConfig{Name: "sid"}, nil)

	deleted, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	for _, token := range []string{"garbage", deleted} {
		var ok bool
		handler := sessions.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, ok = FromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: token})
		handler.ServeHTTP(httptest.NewRecorder(), req)
		require.False(t, ok)
	}
}

func TestLogoutExpiresCookie(t *testing.T) {
	t.Parallel()

	sessions := NewSessions(newTokens(t, &fixedClock{}), userMap{}, CookieConfig{Name: "sid", Secure: true}, nil)
	rec := httptest.NewRecorder()
	sessions.Logout(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "sid", cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
	require.True(t, cookies[0].Secure)
}

func TestRequireUser(t *testing.T) {
	t.Parallel()

	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"Access unauthorized."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New()}))
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSignupValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Signup{Name: "Al", Email: "al@example.com", Password: "secret"}.Validate())

	err := Signup{Email: "not-an-email", Password: "123"}.Validate()
	var fe FieldErrors
	require.True(t, errors.As(err, &fe))
	require.Contains(t, fe, "name")
	require.Contains(t, fe, "email")
	require.Contains(t, fe, "password")
	require.Contains(t, err.Error(), "password: Field must be at least 6 characters long.")

	long := strings.Repeat("a", MaxPasswordBytes+1)
	err = Signup{Name: "Al", Email: "al@example.com", Password: long}.Validate()
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "Field must be at most 72 bytes long.", fe["password"])
	require.NoError(t, Signup{Name: "Al", Email: "al@example.com", Password: long[1:]}.Validate())
	require.Error(t, Login{Email: "al@example.com", Password: long}.Validate())

	// Multi-byte runes count by byte, matching bcrypt's limit.
	require.Error(t, Signup{Name: "Al", Email: "al@example.com", Password: strings.Repeat("é", 37)}.Validate())

	for _, email := range []string{"a@b", "Al <al@example.com>", "@example.com", ""} {
		err := Signup{Name: "Al", Email: email, Password: "secret"}.Validate()
		require.Error(t, err, email)
	}
}

func TestLoginValidateAndNormalize(t *testing.T) {
	t.Parallel()

	require.NoError(t, Login{Email: "al@example.com", Password: "secret"}.Validate())
	require.Error(t, Login{Email: "al@example.com", Password: "short"}.Validate())

	n := Signup{Name: "  Al  ", Email: "  AL@Example.COM ", Password: " pw "}.Normalize()
	require.Equal(t, "Al", n.Name)
	require.Equal(t, "al@example.com", n.Email)
	require.Equal(t, " pw ", n.Password)
}
