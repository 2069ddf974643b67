// ABOUTME: Tests for token verification, the user directory, and the HTTP middleware
// ABOUTME: Covers expiry, bad signatures, TOML loading, and the no-auth fallback

package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/knowledge-gateway/internal/chat"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("jettro", time.Hour)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "jettro", userID)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("jettro", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	token, err := NewJWTVerifier([]byte("secret-a")).Generate("jettro", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTVerifier([]byte("secret-b")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_RejectsForeignIssuer(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.RegisteredClaims{
		Issuer:    "some-other-service",
		Subject:   "jettro",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = NewJWTVerifier(secret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_RequiresExpiry(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.RegisteredClaims{
		Issuer:  "knowledge-gateway",
		Subject: "jettro",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = NewJWTVerifier(secret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDirectory_DefaultsAuthenticate(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)

	user, err := d.Authenticate("jettro", "password")
	require.NoError(t, err)
	assert.Equal(t, "jettro", user.ID)
	assert.Equal(t, "jettro_default_context", user.Context())

	_, err = d.Authenticate("jettro", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = d.Authenticate("nobody", "password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestDirectory_LoadsTOMLFile(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "users.toml")
	content := `
[[users]]
id = "ada"
username = "ada"
display_name = "Ada"
email = "ada@example.com"
password_hash = "` + string(hash) + `"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	d, err := NewDirectory(path, nil)
	require.NoError(t, err)

	user, err := d.Authenticate("ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.DisplayName)

	got, err := d.Lookup("ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	_, err = d.Lookup("jettro")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestDirectory_EmptyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0600))

	_, err := NewDirectory(path, nil)
	assert.Error(t, err)
}

func TestDirectory_ListOrderedByUsername(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)

	users := d.List()
	require.Len(t, users, 4)
	assert.Equal(t, "ian", users[0].Username)
	assert.Equal(t, "ian", d.DefaultUser().Username)
}

func whoamiHandler(t *testing.T, gotUser *chat.User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		*gotUser = user
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("roy", time.Hour)
	require.NoError(t, err)

	var gotUser chat.User
	handler := Middleware(v, d)(whoamiHandler(t, &gotUser))

	req := httptest.NewRequest(http.MethodGet, "/chat/init", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "roy", gotUser.ID)
}

func TestMiddleware_MissingAndBadTokens(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)
	v := NewJWTVerifier([]byte("test-secret"))
	handler := Middleware(v, d)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/chat/init", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddleware_TokenForUnknownUser(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("ghost", time.Hour)
	require.NoError(t, err)

	handler := Middleware(v, d)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))
	req := httptest.NewRequest(http.MethodGet, "/chat/init", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_NilVerifierFallsBackToDefaultUser(t *testing.T) {
	d, err := NewDirectory("", nil)
	require.NoError(t, err)

	var gotUser chat.User
	handler := Middleware(nil, d)(whoamiHandler(t, &gotUser))

	req := httptest.NewRequest(http.MethodGet, "/chat/init", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, d.DefaultUser().ID, gotUser.ID)
}
