package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

// runIdentity pushes a request through HolderIdentity and captures what
// the downstream handler observes.
func runIdentity(t *testing.T, header http.Header) (*httptest.ResponseRecorder, *uint64, *string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var uid *uint64
	var sid *string
	err := HolderIdentity(testSecret)(func(c echo.Context) error {
		uid = HolderUserID(c)
		sid = HolderSessionID(c)
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	return rec, uid, sid
}

func TestHolderIdentityBearerToken(t *testing.T) {
	t.Run("numeric sub claim", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"sub": float64(42)})
		rec, uid, sid := runIdentity(t, http.Header{"Authorization": {"Bearer " + tok}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, uid)
		assert.Equal(t, uint64(42), *uid)
		assert.Nil(t, sid)
	})
	t.Run("string user_id claim", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"user_id": "7"})
		rec, uid, _ := runIdentity(t, http.Header{"Authorization": {"Bearer " + tok}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, uid)
		assert.Equal(t, uint64(7), *uid)
	})
	t.Run("token outranks session header", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"sub": "42"})
		header := http.Header{}
		header.Set("Authorization", "Bearer "+tok)
		header.Set(SessionHeader, "sess-1")
		rec, uid, sid := runIdentity(t, header)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, uid)
		assert.Nil(t, sid)
	})
}

func TestHolderIdentityRejectsBadTokens(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		tok := signToken(t, "other-secret", jwt.MapClaims{"sub": "42"})
		rec, _, _ := runIdentity(t, http.Header{"Authorization": {"Bearer " + tok}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("garbage token", func(t *testing.T) {
		rec, _, _ := runIdentity(t, http.Header{"Authorization": {"Bearer not.a.token"}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("no usable subject", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"role": "admin"})
		rec, _, _ := runIdentity(t, http.Header{"Authorization": {"Bearer " + tok}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHolderIdentitySessionHeader(t *testing.T) {
	header := http.Header{}
	header.Set(SessionHeader, "sess-1")
	rec, uid, sid := runIdentity(t, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, uid)
	require.NotNil(t, sid)
	assert.Equal(t, "sess-1", *sid)
}

func TestHolderIdentityAnonymous(t *testing.T) {
	rec, uid, sid := runIdentity(t, http.Header{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, uid)
	assert.Nil(t, sid)
}
