package njwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/muir/nhttp/njwt"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nsig"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock = func() time.Time { return epoch }
)

func call(h http.Handler, header, value string) *httptest.ResponseRecorder {
	r := httptest.NewRequest("GET", "/me", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestClaimsParameter(t *testing.T) {
	auth := njwt.New([]byte("secret"), njwt.WithClock(clock), njwt.WithIssuer("nhttp"))
	h := npoint.CreateEndpoint("/me", func(claims *njwt.Claims) string {
		if claims.HasRole("admin") {
			return "admin " + claims.Subject
		}
		return claims.Subject
	}, nsig.Arg("claims", auth))

	tok, err := auth.Sign(&njwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Roles:            []string{"admin"},
	})
	require.NoError(t, err)

	w := call(h, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"admin alice"`, w.Body.String())
}

func TestRejectedTokens(t *testing.T) {
	auth := njwt.New([]byte("secret"), njwt.WithClock(clock), njwt.WithTTL(time.Minute), njwt.WithRealm("test"))
	h := npoint.CreateEndpoint("/me", func(claims *njwt.Claims) string { return claims.Subject },
		nsig.Arg("claims", auth))

	valid, err := auth.Sign(&njwt.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	require.NoError(t, err)
	later := njwt.New([]byte("secret"), njwt.WithClock(func() time.Time { return epoch.Add(time.Hour) }))
	expiredHandler := npoint.CreateEndpoint("/me", func(claims *njwt.Claims) string { return claims.Subject },
		nsig.Arg("claims", later))
	otherKey, err := njwt.New([]byte("other"), njwt.WithClock(clock)).Sign(&njwt.Claims{})
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "eve"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name    string
		handler http.Handler
		header  string
		value   string
		invalid bool
	}{
		{"missing", h, "", "", false},
		{"basic auth", h, "Authorization", "Basic Ym9iOnB3", false},
		{"garbage", h, "Authorization", "Bearer not.a.token", true},
		{"wrong key", h, "Authorization", "Bearer " + otherKey, true},
		{"alg none", h, "Authorization", "Bearer " + none, true},
		{"expired", expiredHandler, "Authorization", "Bearer " + valid, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(tc.handler, tc.header, tc.value)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), `"invalid-auth"`)
			want := `Bearer realm="test"`
			if tc.invalid {
				want += `, error="invalid_token"`
			}
			if tc.handler == expiredHandler {
				want = `Bearer realm="api", error="invalid_token"`
			}
			assert.Equal(t, want, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestOptionalAndCookie(t *testing.T) {
	auth := njwt.New([]byte("k"), njwt.WithClock(clock), njwt.WithCookie("session")).Optional()
	h := npoint.CreateEndpoint("/me", func(claims jwt.MapClaims) string {
		if claims == nil {
			return "anonymous"
		}
		sub, _ := claims.GetSubject()
		return sub
	}, nsig.Arg("claims", auth))

	w := call(h, "", "")
	assert.Equal(t, `"anonymous"`, w.Body.String())

	tok, err := auth.Sign(&njwt.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "carol"}})
	require.NoError(t, err)
	w = call(h, "Cookie", "session="+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"carol"`, w.Body.String())
}

type customClaims struct {
	jwt.RegisteredClaims
	Tenant string `json:"tenant"`
}

func TestCustomClaimsAndToken(t *testing.T) {
	auth := njwt.New([]byte("k"), njwt.WithClock(clock))
	tok, err := auth.SignClaims(&customClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Minute))},
		Tenant:           "acme",
	})
	require.NoError(t, err)

	h := npoint.CreateEndpoint("/me", func(c *customClaims, token *jwt.Token) string {
		return c.Tenant + " " + token.Method.Alg()
	}, nsig.Arg("c", auth), nsig.Arg("token", auth))
	w := call(h, "Authorization", "bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"acme HS256"`, w.Body.String())
}

func TestUnsupportedParameterType(t *testing.T) {
	auth := njwt.New([]byte("k"))
	_, err := npoint.NewEndpoint("/me", func(string) {}, nsig.Arg("claims", auth))
	assert.Error(t, err)
}
